package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/trajlog/internal/domain"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) Append(ctx context.Context, ev *domain.Event) error {
	var callID, toolName, toolInput, toolResult string
	if ev.Tool != nil {
		callID = ev.Tool.CallID
		toolName = ev.Tool.Name
		toolInput = ev.Tool.Input.String()
		toolResult = ev.Tool.Result.String()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO trajectory_events
		   (id, ts, role, content, session_id, tool_call_id, tool_name, tool_input, tool_result)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), ev.Timestamp, ev.Role.String(), ev.Content, ev.SessionID,
		callID, toolName, toolInput, toolResult,
	)
	if err != nil {
		return fmt.Errorf("eventRepo.Append: %w", err)
	}

	return nil
}

// ListByPrefix returns rows whose session id starts with prefix, in storage
// order, stopping once maxBytes worth of rows has been read.
func (r *EventRepo) ListByPrefix(ctx context.Context, prefix string, maxBytes int64) (*domain.RowSet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ts, role, content, session_id, tool_name, tool_input, tool_result
		 FROM trajectory_events WHERE session_id LIKE $1 ESCAPE '\'`,
		likePrefix(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.ListByPrefix: %w", err)
	}
	defer rows.Close()

	set, err := collectRows(rows, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.ListByPrefix: %w", err)
	}
	return set, nil
}

// rowScanner is the subset of pgx.Rows read by collectRows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// collectRows stops reading as soon as the byte cap refuses a row.
func collectRows(rows rowScanner, maxBytes int64) (*domain.RowSet, error) {
	collector := domain.NewRowCollector(maxBytes)
	for rows.Next() {
		var (
			row           domain.LogRow
			input, result string
		)

		if err := rows.Scan(&row.Timestamp, &row.Role, &row.Content, &row.SessionID, &row.ToolName, &input, &result); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row.ToolInput = domain.RawPayload(input)
		row.ToolResult = domain.RawPayload(result)

		if !collector.Add(row) {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return collector.Result(), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`) //nolint:gochecknoglobals // immutable replacer

// likePrefix turns a literal prefix into a LIKE pattern.
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
