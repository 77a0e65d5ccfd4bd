package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const maxLineBytes = 4 * 1024 * 1024

// LineHandler consumes one stream-json line. The slice is only valid for the
// duration of the call.
type LineHandler func(ctx context.Context, line []byte)

// Runner executes the agent CLI for a single prompt and feeds its stdout,
// line by line, to handle. Run returns once the process has exited and all
// output has been handled.
type Runner interface {
	Run(ctx context.Context, prompt string, handle LineHandler) error
}

// RunOptions are the CLI flags shared by every runner.
type RunOptions struct {
	MaxTurns     int
	AllowedTools []string
	// MCPConfig is passed to --mcp-config, either inline JSON or a file path.
	MCPConfig string
}

// claudeArgs builds the non-interactive stream-json invocation.
func claudeArgs(prompt string, opts RunOptions) []string {
	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if opts.MCPConfig != "" {
		args = append(args, "--mcp-config", opts.MCPConfig)
	}
	return args
}

// scanLines dispatches every non-blank line of r to handle.
func scanLines(ctx context.Context, r io.Reader, handle LineHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		handle(ctx, line)
	}
	return scanner.Err()
}

// logLines writes every line of r to the debug log.
func logLines(r io.Reader, stream string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		log.Debug().Str("stream", stream).Msg(scanner.Text())
	}
	return scanner.Err()
}

// LocalRunner runs the agent binary on the host.
type LocalRunner struct {
	binary string
	opts   RunOptions
}

func NewLocalRunner(binary string, opts RunOptions) *LocalRunner {
	if binary == "" {
		binary = "claude"
	}
	return &LocalRunner{binary: binary, opts: opts}
}

func (l *LocalRunner) Run(ctx context.Context, prompt string, handle LineHandler) error {
	cmd := exec.CommandContext(ctx, l.binary, claudeArgs(prompt, l.opts)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("agent.LocalRunner.Run: stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("agent.LocalRunner.Run: stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("agent.LocalRunner.Run: start %s: %w", l.binary, err)
	}
	log.Debug().Str("binary", l.binary).Int("pid", cmd.Process.Pid).Msg("agent: process started")

	// Both pipes must be drained before Wait closes them.
	var g errgroup.Group
	g.Go(func() error {
		err := scanLines(ctx, stdout, handle)
		if err != nil {
			// Keep draining so the child never blocks on a full pipe.
			_, _ = io.Copy(io.Discard, stdout)
		}
		return err
	})
	g.Go(func() error { return logLines(stderr, "stderr") })
	readErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("agent.LocalRunner.Run: %w", err)
	}
	if readErr != nil {
		return fmt.Errorf("agent.LocalRunner.Run: read output: %w", readErr)
	}
	return nil
}
