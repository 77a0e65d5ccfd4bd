package discovery

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

const psFormat = "{{.ID}}\t{{.Names}}\t{{.Image}}"

// CLIBackend shells out to the docker binary. It is the fallback for hosts
// where the Engine socket is not reachable but the CLI is configured.
type CLIBackend struct {
	bin string
}

var _ Backend = (*CLIBackend)(nil)

func NewCLIBackend(bin string) *CLIBackend {
	if bin == "" {
		bin = "docker"
	}
	return &CLIBackend{bin: bin}
}

func (b *CLIBackend) List(ctx context.Context, f Filter) ([]Container, error) {
	args := []string{"ps", "--no-trunc", "--format", psFormat}
	if f.Ancestor != "" {
		args = append(args, "--filter", "ancestor="+f.Ancestor)
	}
	if f.Label != "" {
		args = append(args, "--filter", "label="+f.Label)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("discovery.CLIBackend.List: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parsePS(&stdout), nil
}

func (b *CLIBackend) Exec(ctx context.Context, containerID string, cmd []string, stdout io.Writer) error {
	args := append([]string{"exec", containerID}, cmd...)

	var stderr bytes.Buffer
	c := exec.CommandContext(ctx, b.bin, args...)
	c.Stdout = stdout
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("discovery.CLIBackend.Exec: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (b *CLIBackend) Close() error { return nil }

// parsePS reads `docker ps` output in psFormat.
func parsePS(r io.Reader) []Container {
	var out []Container
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		c := Container{ID: fields[0]}
		if len(fields) > 1 && fields[1] != "" {
			c.Names = strings.Split(fields[1], ",")
		}
		if len(fields) > 2 {
			c.Image = fields[2]
		}
		out = append(out, c)
	}
	return out
}
