// Package backend builds the event sink and log row source selected by
// configuration.
package backend

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/trajlog/internal/config"
	"github.com/gosuda/trajlog/internal/discovery"
	"github.com/gosuda/trajlog/internal/domain"
	"github.com/gosuda/trajlog/internal/emitter"
	"github.com/gosuda/trajlog/internal/store/clickhouse"
	"github.com/gosuda/trajlog/internal/store/postgres"
	redisstore "github.com/gosuda/trajlog/internal/store/redis"
	"github.com/gosuda/trajlog/internal/telemetry"
)

// ShutdownFunc flushes and releases a sink.
type ShutdownFunc func(ctx context.Context) error

// OpenSink returns the sink for cfg.Backend, or ErrTelemetryDisabled when
// emission is switched off. Export failures of the otlp sink are delivered
// to onError.
func OpenSink(ctx context.Context, cfg *config.Config, onError emitter.ErrorHandler) (domain.EventSink, ShutdownFunc, error) {
	if !cfg.Telemetry.Enabled {
		return nil, nil, domain.ErrTelemetryDisabled
	}

	switch cfg.Backend {
	case config.BackendOTLP:
		if err := cfg.Telemetry.CheckEndpoint(); err != nil {
			return nil, nil, fmt.Errorf("backend.OpenSink: %w", err)
		}
		sink, err := telemetry.New(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.Endpoint,
		}, onError)
		if err != nil {
			return nil, nil, fmt.Errorf("backend.OpenSink: %w", err)
		}
		return sink, sink.Shutdown, nil

	case config.BackendPostgres:
		store, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("backend.OpenSink: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("backend.OpenSink: %w", err)
		}
		return store, closeOnShutdown(store.Close), nil

	case config.BackendRedis:
		store, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Fetch.MaxQueryBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("backend.OpenSink: %w", err)
		}
		return store, closeOnShutdown(store.Close), nil
	}

	return nil, nil, fmt.Errorf("backend.OpenSink: unknown backend %q", cfg.Backend)
}

// OpenSource returns the row source for cfg.Backend. For otlp it reads the
// ClickHouse table the collector writes to, either over the native protocol
// when an address is configured or through the discovered container.
func OpenSource(ctx context.Context, cfg *config.Config) (domain.LogRowSource, error) {
	switch cfg.Backend {
	case config.BackendOTLP:
		if cfg.ClickHouse.Addr != "" {
			src, err := clickhouse.NewNativeSource(ctx, clickhouse.NativeConfig{
				Addr:        cfg.ClickHouse.Addr,
				Database:    cfg.ClickHouse.Database,
				Username:    cfg.ClickHouse.User,
				Password:    cfg.ClickHouse.Password,
				Table:       cfg.ClickHouse.Table,
				DialTimeout: cfg.ClickHouse.DialTimeout,
				MaxBytes:    cfg.Fetch.MaxQueryBytes,
			})
			if err != nil {
				return nil, fmt.Errorf("backend.OpenSource: %w", err)
			}
			return src, nil
		}

		b, err := DiscoveryBackend(cfg)
		if err != nil {
			return nil, fmt.Errorf("backend.OpenSource: %w", err)
		}
		d := discovery.NewDiscoverer(b, Strategies(cfg)...)
		src, err := clickhouse.NewExecSource(ctx, b, d, cfg.ClickHouse.Table, cfg.Fetch.MaxQueryBytes)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("backend.OpenSource: %w", err)
		}
		return src, nil

	case config.BackendPostgres:
		store, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("backend.OpenSource: %w", err)
		}
		return store, nil

	case config.BackendRedis:
		store, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Fetch.MaxQueryBytes)
		if err != nil {
			return nil, fmt.Errorf("backend.OpenSource: %w", err)
		}
		return store, nil
	}

	return nil, fmt.Errorf("backend.OpenSource: unknown backend %q", cfg.Backend)
}

// DiscoveryBackend returns the container runtime client for cfg.Docker.Mode.
func DiscoveryBackend(cfg *config.Config) (discovery.Backend, error) {
	if cfg.Docker.Mode == config.DockerModeCLI {
		return discovery.NewCLIBackend(""), nil
	}
	b, err := discovery.NewAPIBackend(cfg.Docker.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDiscovery, err)
	}
	return b, nil
}

// Strategies lists the log-store discovery strategies in the order they
// are tried. An explicit container reference always comes first.
func Strategies(cfg *config.Config) []discovery.Strategy {
	ch := cfg.ClickHouse
	var out []discovery.Strategy
	if ch.Container != "" {
		out = append(out, discovery.ByName(ch.Container))
	}
	if ch.Image != "" {
		out = append(out, discovery.ByAncestor(ch.Image))
	}
	if ch.Label != "" {
		out = append(out, discovery.ByLabel(ch.Label))
	}
	if ch.NamePattern != "" {
		out = append(out, discovery.ByNamePattern(ch.NamePattern))
	}
	return out
}

func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}
	log.Debug().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("backend: connecting to postgres")
	return postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), cfg.Fetch.MaxQueryBytes) //nolint:gosec // bounds checked above
}

func closeOnShutdown(closeFn func() error) ShutdownFunc {
	return func(context.Context) error { return closeFn() }
}
