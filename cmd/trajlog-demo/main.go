package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/trajlog/internal/agent"
	"github.com/gosuda/trajlog/internal/backend"
	"github.com/gosuda/trajlog/internal/config"
	"github.com/gosuda/trajlog/internal/domain"
	"github.com/gosuda/trajlog/internal/emitter"
	"github.com/gosuda/trajlog/internal/tools"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "trajlog-demo <prompt>",
		Short: "Run an agent on a prompt and log its trajectory",
		Example: `  trajlog-demo "What is 2+2?"
  CLAUDE_CODE_ENABLE_TELEMETRY=1 trajlog-demo "What is 15 * 7?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   tools.ServeCommand,
		Short: "Serve the demo calculator tool over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			config.SetupLogging()
			return tools.Serve(cmd.Context())
		},
	})
	return root
}

func run(ctx context.Context, out io.Writer, prompt string) error {
	config.SetupLogging()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	em, shutdown := openEmitter(ctx, cfg, out)
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("sink shutdown failed")
		}
	}()

	runner, closeRunner, err := runners(cfg).Create(cfg.Agent.Mode)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRunner(); err != nil {
			log.Warn().Err(err).Msg("runner close failed")
		}
	}()

	fmt.Fprintf(out, "\n--- Running Agent ---\nPrompt: %s\n\n", prompt)

	rec := agent.NewRecorder(em, prompt, out)
	runErr := runner.Run(ctx, prompt, rec.Handle)
	rec.Close(ctx)

	if id := rec.SessionID(); id != "" {
		fmt.Fprintf(out, "\nSession: %s\nFetch with: trajlog-fetch %s\n", id, id)
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("agent run failed")
		return runErr
	}
	return nil
}

// openEmitter never fails: without a usable sink the run continues unlogged.
func openEmitter(ctx context.Context, cfg *config.Config, out io.Writer) (*emitter.Emitter, backend.ShutdownFunc) {
	noop := func(context.Context) error { return nil }

	sink, shutdown, err := backend.OpenSink(ctx, cfg, emitter.LogErrors())
	switch {
	case errors.Is(err, domain.ErrTelemetryDisabled):
		fmt.Fprintln(out, "[Telemetry] Disabled (set CLAUDE_CODE_ENABLE_TELEMETRY=1 to enable)")
		return emitter.Disabled(), noop
	case err != nil:
		log.Warn().Err(err).Str("backend", cfg.Backend).Msg("telemetry sink unavailable, continuing without it")
		fmt.Fprintf(out, "[Telemetry] Disabled (%s sink unavailable)\n", cfg.Backend)
		return emitter.Disabled(), noop
	}

	target := cfg.Backend
	if cfg.Backend == config.BackendOTLP {
		target = cfg.Telemetry.Endpoint
	}
	fmt.Fprintf(out, "[Telemetry] Enabled, exporting to %s\n", target)

	return emitter.New(sink, emitter.WithErrorHandler(emitter.LogErrors())), shutdown
}

func runners(cfg *config.Config) *agent.Registry {
	opts := agent.RunOptions{MaxTurns: cfg.Agent.MaxTurns, AllowedTools: cfg.Agent.AllowedTools}

	reg := agent.NewRegistry()
	reg.Register(config.AgentModeLocal, func() (agent.Runner, func() error, error) {
		return agent.NewLocalRunner(cfg.Agent.Binary, withDemoTools(cfg, opts)), nil, nil
	})
	reg.Register(config.AgentModeDocker, func() (agent.Runner, func() error, error) {
		rt, err := agent.NewDockerRuntime(cfg.Docker.Host, cfg.Agent.CPULimit, cfg.Agent.MemLimit)
		if err != nil {
			return nil, nil, err
		}
		return agent.NewDockerRunner(rt, cfg.Agent.Image, cfg.Agent.PassEnv, opts), rt.Close, nil
	})
	return reg
}

// withDemoTools points a local agent at the calculator served by this
// binary. The agent image does not carry it, so docker runs go without.
func withDemoTools(cfg *config.Config, opts agent.RunOptions) agent.RunOptions {
	if !cfg.Agent.DemoTools {
		return opts
	}

	exe, err := os.Executable()
	if err != nil {
		log.Warn().Err(err).Msg("demo tools unavailable")
		return opts
	}
	mcpConfig, err := tools.MCPConfig(exe)
	if err != nil {
		log.Warn().Err(err).Msg("demo tools unavailable")
		return opts
	}

	opts.MCPConfig = mcpConfig
	if name := tools.QualifiedName(tools.CalculatorName); !slices.Contains(opts.AllowedTools, name) {
		opts.AllowedTools = append(slices.Clone(opts.AllowedTools), name)
	}
	return opts
}
