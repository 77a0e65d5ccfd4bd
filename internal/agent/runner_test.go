package agent

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaudeArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts RunOptions
		want []string
	}{
		{
			name: "defaults",
			want: []string{"-p", "hi", "--output-format", "stream-json", "--verbose"},
		},
		{
			name: "turns and tools",
			opts: RunOptions{MaxTurns: 3, AllowedTools: []string{"Read", "mcp__demo-tools__calculator"}},
			want: []string{
				"-p", "hi", "--output-format", "stream-json", "--verbose",
				"--max-turns", "3", "--allowedTools", "Read,mcp__demo-tools__calculator",
			},
		},
		{
			name: "mcp config",
			opts: RunOptions{MCPConfig: `{"mcpServers":{}}`},
			want: []string{
				"-p", "hi", "--output-format", "stream-json", "--verbose",
				"--mcp-config", `{"mcpServers":{}}`,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, claudeArgs("hi", tc.opts))
		})
	}
}

func TestScanLines(t *testing.T) {
	t.Parallel()

	var got []string
	err := scanLines(context.Background(), strings.NewReader("a\n\n  \nb\n"), func(_ context.Context, line []byte) {
		got = append(got, string(line))
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestScanLines_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := scanLines(ctx, strings.NewReader("a\nb\n"), func(context.Context, []byte) { calls++ })

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestLocalRunner_Run(t *testing.T) {
	t.Parallel()

	t.Run("stdout lines reach handler", func(t *testing.T) {
		t.Parallel()

		// echo prints its arguments, standing in for the agent binary.
		r := NewLocalRunner("echo", RunOptions{MaxTurns: 2})
		var lines []string
		err := r.Run(context.Background(), "hello", func(_ context.Context, line []byte) {
			lines = append(lines, string(line))
		})

		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, "-p hello --output-format stream-json --verbose --max-turns 2", lines[0])
	})

	t.Run("non-zero exit is an error", func(t *testing.T) {
		t.Parallel()

		r := NewLocalRunner("false", RunOptions{})
		err := r.Run(context.Background(), "hello", func(context.Context, []byte) {})
		require.Error(t, err)
	})

	t.Run("missing binary is an error", func(t *testing.T) {
		t.Parallel()

		r := NewLocalRunner("trajlog-no-such-agent-binary", RunOptions{})
		err := r.Run(context.Background(), "hello", func(context.Context, []byte) {})
		require.ErrorContains(t, err, "start")
	})
}

// writeAgentScript writes an executable shell script standing in for the agent binary.
func writeAgentScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "fake-agent")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755)) //nolint:gosec // test executable
	return path
}

func TestLocalRunner_OverlongLineDoesNotHang(t *testing.T) {
	t.Parallel()

	// A 5 MiB line followed by 1 MiB more: the scanner gives up on the first
	// line while the process still has output to write.
	bin := writeAgentScript(t, `head -c 5242880 /dev/zero | tr '\0' 'a'
echo
head -c 1048576 /dev/zero | tr '\0' 'b'
echo
`)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- NewLocalRunner(bin, RunOptions{}).Run(ctx, "hello", func(context.Context, []byte) {})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, bufio.ErrTooLong)
		assert.NoError(t, ctx.Err(), "run must finish on its own, not by timeout")
	case <-time.After(20 * time.Second):
		t.Fatal("LocalRunner.Run did not return")
	}
}
