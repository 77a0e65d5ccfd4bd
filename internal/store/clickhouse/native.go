package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/gosuda/trajlog/internal/domain"
)

// NativeConfig addresses a ClickHouse server over the native protocol.
type NativeConfig struct {
	Addr        string
	Database    string
	Username    string
	Password    string //nolint:gosec // connection config
	Table       string
	DialTimeout time.Duration
	MaxBytes    int64
}

// NativeSource queries ClickHouse directly, bypassing container discovery.
type NativeSource struct {
	conn     driver.Conn
	table    string
	maxBytes int64
}

var _ domain.LogRowSource = (*NativeSource)(nil)

func NewNativeSource(ctx context.Context, cfg NativeConfig) (*NativeSource, error) {
	if !ValidTable(cfg.Table) {
		return nil, fmt.Errorf("clickhouse.NewNativeSource: invalid table name %q", cfg.Table)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse.NewNativeSource: open: %w", err)
	}

	if err = conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse.NewNativeSource: ping: %w", err)
	}

	return &NativeSource{conn: conn, table: cfg.Table, maxBytes: cfg.MaxBytes}, nil
}

func (s *NativeSource) RowsByPrefix(ctx context.Context, prefix string) (*domain.RowSet, error) {
	rows, err := s.conn.Query(ctx, buildQuery(s.table, "?"), prefix)
	if err != nil {
		return nil, fmt.Errorf("clickhouse.NativeSource.RowsByPrefix: %w", err)
	}
	defer rows.Close()

	collector := domain.NewRowCollector(s.maxBytes)
	for rows.Next() {
		var jr jsonRow
		var ts int64

		err = rows.Scan(&ts, &jr.Role, &jr.Content, &jr.SessionID, &jr.ToolName, &jr.ToolInput, &jr.ToolResult)
		if err != nil {
			return nil, fmt.Errorf("clickhouse.NativeSource.RowsByPrefix: scan: %w", err)
		}
		jr.TSNano = unixNano(ts)

		if !collector.Add(jr.logRow()) {
			break
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse.NativeSource.RowsByPrefix: rows: %w", err)
	}

	return collector.Result(), nil
}

func (s *NativeSource) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("clickhouse.NativeSource.Close: %w", err)
	}
	return nil
}
