package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/trajlog/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trajectory_events (
	id           uuid        PRIMARY KEY,
	ts           timestamptz NOT NULL,
	role         text        NOT NULL DEFAULT '',
	content      text        NOT NULL DEFAULT '',
	session_id   text        NOT NULL DEFAULT '',
	tool_call_id text        NOT NULL DEFAULT '',
	tool_name    text        NOT NULL DEFAULT '',
	tool_input   text        NOT NULL DEFAULT '',
	tool_result  text        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS trajectory_events_session_id_idx
	ON trajectory_events (session_id text_pattern_ops);
`

// Store is a Postgres-backed log store. It is both an event sink and a row source.
type Store struct {
	pool     *pgxpool.Pool
	events   *EventRepo
	maxBytes int64
}

var (
	_ domain.EventSink    = (*Store)(nil)
	_ domain.LogRowSource = (*Store)(nil)
)

func New(ctx context.Context, dsn string, maxConns int32, maxBytes int64) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:     pool,
		events:   NewEventRepo(pool),
		maxBytes: maxBytes,
	}, nil
}

// EnsureSchema creates the events table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Store.EnsureSchema: %w", err)
	}
	return nil
}

func (s *Store) Emit(ctx context.Context, ev *domain.Event) error {
	return s.events.Append(ctx, ev)
}

func (s *Store) RowsByPrefix(ctx context.Context, prefix string) (*domain.RowSet, error) {
	return s.events.ListByPrefix(ctx, prefix, s.maxBytes)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
