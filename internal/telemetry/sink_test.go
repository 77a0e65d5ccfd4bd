package telemetry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/gosuda/trajlog/internal/domain"
	"github.com/gosuda/trajlog/internal/emitter"
	"github.com/gosuda/trajlog/internal/telemetry"
)

type memoryExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
	err     error
}

func (e *memoryExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return e.err
}

func (e *memoryExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryExporter) snapshot() []sdklog.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sdklog.Record(nil), e.records...)
}

func attributes(r *sdklog.Record) map[string]string {
	m := make(map[string]string)
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		m[kv.Key] = kv.Value.AsString()
		return true
	})
	return m
}

func TestRecord_UserEvent(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	r := telemetry.Record(&domain.Event{
		Role:      domain.RoleUser,
		Content:   "What is 2+2?",
		SessionID: "abc12345",
		Timestamp: ts,
	})

	assert.Equal(t, otellog.SeverityInfo, r.Severity())
	assert.Equal(t, "INFO", r.SeverityText())
	assert.Equal(t, "message", r.Body().AsString())
	assert.Equal(t, ts, r.Timestamp())
	assert.Equal(t, 3, r.AttributesLen())
}

func TestSink_ExportsFlattenedAttributes(t *testing.T) {
	exp := &memoryExporter{}
	sink := telemetry.NewWithExporter("demo-agent", exp)
	t.Cleanup(func() { _ = sink.Shutdown(context.Background()) })

	in, err := domain.EncodePayload(map[string]any{"operation": "add", "a": 2, "b": 2})
	require.NoError(t, err)
	out, err := domain.EncodePayload(map[string]any{"result": 4})
	require.NoError(t, err)

	e := emitter.New(sink)
	e.Session("abc12345-0000").RecordToolCall(context.Background(), domain.ToolCall{
		CallID: "abc12345-1",
		Name:   "calculator",
		Input:  in,
		Result: out,
	})

	records := exp.snapshot()
	require.Len(t, records, 1)

	attrs := attributes(&records[0])
	assert.Equal(t, map[string]string{
		domain.AttrRole:       "tool",
		domain.AttrContent:    `{"result":4}`,
		domain.AttrSessionID:  "abc12345-0000",
		domain.AttrToolCallID: "abc12345-1",
		domain.AttrToolName:   "calculator",
		domain.AttrToolInput:  `{"a":2,"b":2,"operation":"add"}`,
		domain.AttrToolResult: `{"result":4}`,
	}, attrs)
	assert.Equal(t, "demo-agent", records[0].InstrumentationScope().Name)
}

func TestSink_ExportErrorReachesHandler(t *testing.T) {
	var (
		mu  sync.Mutex
		got []error
	)
	telemetry.InstallErrorHandler(func(err error) {
		mu.Lock()
		got = append(got, err)
		mu.Unlock()
	})
	t.Cleanup(func() { telemetry.InstallErrorHandler(emitter.DiscardErrors()) })

	boom := errors.New("connection refused")
	sink := telemetry.NewWithExporter("demo-agent", &memoryExporter{err: boom})
	t.Cleanup(func() { _ = sink.Shutdown(context.Background()) })

	err := sink.Emit(context.Background(), &domain.Event{
		Role:      domain.RoleUser,
		Content:   "hello",
		SessionID: "abc12345",
		Timestamp: time.Now(),
	})
	require.NoError(t, err, "export failures never surface from Emit")

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	assert.ErrorIs(t, got[0], boom)
}

func TestSink_NilEvent(t *testing.T) {
	t.Parallel()

	sink := telemetry.NewWithExporter("demo-agent", &memoryExporter{})
	t.Cleanup(func() { _ = sink.Shutdown(context.Background()) })

	require.Error(t, sink.Emit(context.Background(), nil))
}
