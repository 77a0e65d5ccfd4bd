package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/trajlog/internal/backend"
	"github.com/gosuda/trajlog/internal/config"
	"github.com/gosuda/trajlog/internal/domain"
	"github.com/gosuda/trajlog/internal/server"
	"github.com/gosuda/trajlog/internal/store/clickhouse"
	"github.com/gosuda/trajlog/internal/transcript"
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
		Use:   "trajlog-fetch <session-id>",
		Short: "Reconstruct a session transcript from the log store",
		Example: `  trajlog-fetch 54d5f26c-2621-4dcf-aa23-1f7cf8a9f627
  trajlog-fetch 54d5f26c`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			err := fetch(cmd.Context(), cmd.OutOrStdout(), args[0])
			if err != nil {
				report(cmd.ErrOrStderr(), args[0], err)
			}
			return err
		},
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve transcripts over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			err := serve(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}
			return err
		},
	}
}

func serve(ctx context.Context) error {
	config.SetupLogging()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	src, err := backend.OpenSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn().Err(err).Msg("closing log source failed")
		}
	}()

	srv := server.New(cfg, transcript.NewReconstructor(src))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func fetch(ctx context.Context, out io.Writer, prefix string) error {
	config.SetupLogging()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Fetch.QueryTimeout)
	defer cancel()

	fmt.Fprintf(out, "Fetching logs for session: %s\n", prefix)

	src, err := backend.OpenSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn().Err(err).Msg("closing log source failed")
		}
	}()

	if es, ok := src.(*clickhouse.ExecSource); ok {
		fmt.Fprintf(out, "Using container: %s\n", es.ContainerID())
	}

	t, err := transcript.NewReconstructor(src).Reconstruct(ctx, prefix)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Found %d messages in session: %s\n", t.MessageCount, t.SessionID)

	path, err := transcript.WriteArtifact(cfg.Fetch.OutputDir, t)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved to: %s\n", path)
	return nil
}

// report prints the user-facing form of a fetch or usage error.
func report(w io.Writer, prefix string, err error) {
	var ambiguous *transcript.AmbiguousSessionError
	switch {
	case errors.Is(err, domain.ErrNoLogsFound):
		fmt.Fprintf(w, "No logs found for session: %s\n", prefix)
	case errors.As(err, &ambiguous):
		fmt.Fprintf(w, "Session prefix %q is ambiguous; use a longer prefix:\n", prefix)
		for _, c := range ambiguous.Candidates {
			fmt.Fprintf(w, "  %s  (%d messages, first at %s)\n", c.SessionID, c.Rows, c.FirstSeen.UTC().Format("2006-01-02T15:04:05Z07:00"))
		}
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}
