package clickhouse

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/trajlog/internal/discovery"
	"github.com/gosuda/trajlog/internal/domain"
)

const clientBinary = "clickhouse-client"

// ExecSource runs clickhouse-client inside the discovered log-store container.
type ExecSource struct {
	backend     discovery.Backend
	containerID string
	table       string
	maxBytes    int64
}

var _ domain.LogRowSource = (*ExecSource)(nil)

// NewExecSource discovers the container once. The backend is owned by the
// source and released by Close.
func NewExecSource(ctx context.Context, backend discovery.Backend, d *discovery.Discoverer, table string, maxBytes int64) (*ExecSource, error) {
	if !ValidTable(table) {
		return nil, fmt.Errorf("clickhouse.NewExecSource: invalid table name %q", table)
	}

	c, err := d.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("clickhouse.NewExecSource: %w", err)
	}
	log.Info().Str("container_id", shortContainerID(c.ID)).Strs("names", c.Names).Msg("clickhouse: using container")

	return &ExecSource{
		backend:     backend,
		containerID: c.ID,
		table:       table,
		maxBytes:    maxBytes,
	}, nil
}

// ContainerID returns the discovered container.
func (s *ExecSource) ContainerID() string { return s.containerID }

func (s *ExecSource) RowsByPrefix(ctx context.Context, prefix string) (*domain.RowSet, error) {
	cmd := []string{
		clientBinary,
		"--query", buildQuery(s.table, prefixParam),
		"--format=JSONEachRow",
		"--param_prefix=" + prefix,
	}

	out := newCappedBuffer(s.maxBytes)
	if err := s.backend.Exec(ctx, s.containerID, cmd, out); err != nil {
		return nil, fmt.Errorf("clickhouse.ExecSource.RowsByPrefix: %w", err)
	}

	rows := parseJSONEachRow(out.buf.Bytes(), out.truncated)
	return &domain.RowSet{
		Rows:      rows,
		Truncated: out.truncated,
		BytesRead: int64(out.buf.Len()),
	}, nil
}

func (s *ExecSource) Close() error {
	return s.backend.Close()
}

func shortContainerID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
