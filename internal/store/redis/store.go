package redis

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/trajlog/internal/domain"
)

const (
	keyPrefix = "trajlog:session:"
	fieldTS   = "ts"
	scanCount = 100
)

// Store keeps one Redis stream per session. Prefix retrieval scans stream
// keys, so no secondary index is needed.
type Store struct {
	client   *redis.Client
	maxBytes int64
}

var (
	_ domain.EventSink    = (*Store)(nil)
	_ domain.LogRowSource = (*Store)(nil)
)

func New(ctx context.Context, addr, password string, db int, maxBytes int64) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &Store{client: client, maxBytes: maxBytes}, nil
}

func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("redis.Store.Close: %w", err)
	}
	return nil
}

func (s *Store) Emit(ctx context.Context, ev *domain.Event) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(ev.SessionID),
		Values: EventValues(ev),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis.Store.Emit: %w", err)
	}
	return nil
}

func (s *Store) RowsByPrefix(ctx context.Context, prefix string) (*domain.RowSet, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, StreamKeyPattern(prefix), scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis.Store.RowsByPrefix: scan: %w", err)
	}
	slices.Sort(keys)

	collector := domain.NewRowCollector(s.maxBytes)
	for _, key := range keys {
		msgs, err := s.client.XRange(ctx, key, "-", "+").Result()
		if err != nil {
			return nil, fmt.Errorf("redis.Store.RowsByPrefix: xrange %s: %w", key, err)
		}

		for _, msg := range msgs {
			row, err := RowFromValues(msg.Values)
			if err != nil {
				log.Warn().Err(err).Str("stream", key).Str("entry", msg.ID).Msg("redis: skipping entry")
				continue
			}
			if !collector.Add(row) {
				return collector.Result(), nil
			}
		}
	}

	return collector.Result(), nil
}

// StreamKey returns the stream name for a session.
func StreamKey(sessionID string) string {
	return keyPrefix + sessionID
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`) //nolint:gochecknoglobals // immutable replacer

// StreamKeyPattern returns the SCAN pattern matching all sessions whose id starts with prefix.
func StreamKeyPattern(prefix string) string {
	return keyPrefix + globEscaper.Replace(prefix) + "*"
}

// EventValues flattens an event into stream entry fields.
func EventValues(ev *domain.Event) map[string]any {
	attrs := ev.Attributes()
	values := make(map[string]any, len(attrs)+1)
	values[fieldTS] = ev.Timestamp.UTC().Format(time.RFC3339Nano)
	for _, a := range attrs {
		values[a.Key] = a.Value
	}
	return values
}

// RowFromValues rebuilds a row from stream entry fields.
func RowFromValues(values map[string]any) (domain.LogRow, error) {
	str := func(key string) string {
		if v, ok := values[key].(string); ok {
			return v
		}
		return ""
	}

	ts, err := time.Parse(time.RFC3339Nano, str(fieldTS))
	if err != nil {
		return domain.LogRow{}, fmt.Errorf("redis.RowFromValues: timestamp: %w", err)
	}

	return domain.LogRow{
		Timestamp:  ts,
		Role:       str(domain.AttrRole),
		Content:    str(domain.AttrContent),
		SessionID:  str(domain.AttrSessionID),
		ToolName:   str(domain.AttrToolName),
		ToolInput:  domain.RawPayload(str(domain.AttrToolInput)),
		ToolResult: domain.RawPayload(str(domain.AttrToolResult)),
	}, nil
}
