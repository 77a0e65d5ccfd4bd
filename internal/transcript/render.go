package transcript

import (
	"strconv"
	"strings"
	"time"

	"github.com/gosuda/trajlog/internal/domain"
)

const (
	separatorWidth = 80
	timeLayout     = "2006-01-02T15:04:05.000Z07:00"
)

var separator = strings.Repeat("=", separatorWidth) //nolint:gochecknoglobals // constant line

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Render produces the artifact text: a header followed by one block per message.
func Render(t *Transcript) string {
	lines := []string{
		"Session: " + t.SessionID,
		"Messages: " + strconv.Itoa(t.MessageCount),
		"Fetched at: " + formatTime(t.FetchedAt),
		"",
	}
	for i := range t.Messages {
		lines = append(lines, RenderMessage(&t.Messages[i]))
	}
	return strings.Join(lines, "\n")
}

// RenderMessage formats a single row as a separated block ending in a blank line.
func RenderMessage(row *domain.LogRow) string {
	lines := []string{
		separator,
		"[" + formatTime(row.Timestamp) + "] " + strings.ToUpper(strings.TrimSpace(row.Role)),
		separator,
	}

	if strings.TrimSpace(row.Role) == string(domain.RoleTool) && row.ToolName != "" {
		input, ok := row.ToolInput.Pretty()
		if !ok {
			input = row.ToolInput.String()
		}
		lines = append(lines,
			"Tool: "+row.ToolName,
			"",
			"Input:",
			input,
			"",
			"Result:",
		)
	}

	lines = append(lines, row.Content, "")
	return strings.Join(lines, "\n")
}
