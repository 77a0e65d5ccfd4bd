package transcript

import (
	"fmt"
	"os"
	"path/filepath"
)

const artifactIDLen = 8

// ArtifactName derives the file name from the first eight characters of the
// session id. Re-running for the same session overwrites the file.
func ArtifactName(sessionID string) string {
	id := sessionID
	if len(id) > artifactIDLen {
		id = id[:artifactIDLen]
	}
	return "session-" + id + ".txt"
}

// WriteArtifact renders t into dir and returns the written path.
func WriteArtifact(dir string, t *Transcript) (string, error) {
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, ArtifactName(t.SessionID))

	if err := os.WriteFile(path, []byte(Render(t)), 0o644); err != nil { //nolint:gosec // transcript is meant to be readable
		return "", fmt.Errorf("transcript.WriteArtifact: %w", err)
	}
	return path, nil
}
