package clickhouse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/trajlog/internal/discovery"
	"github.com/gosuda/trajlog/internal/domain"
)

type execBackend struct {
	containers []discovery.Container
	output     string
	execErr    error
	gotID      string
	gotCmd     []string
	closed     bool
}

func (b *execBackend) List(context.Context, discovery.Filter) ([]discovery.Container, error) {
	return b.containers, nil
}

func (b *execBackend) Exec(_ context.Context, id string, cmd []string, stdout io.Writer) error {
	b.gotID = id
	b.gotCmd = cmd
	if b.execErr != nil {
		return b.execErr
	}
	_, err := io.Copy(stdout, strings.NewReader(b.output))
	return err
}

func (b *execBackend) Close() error {
	b.closed = true
	return nil
}

const sampleOutput = `{"ts_nano":"1700000000000000002","role":"assistant","content":"The answer is 4.","session_id":"abc12345-0000","tool_name":"","tool_input":"","tool_result":""}
{"ts_nano":1700000000000000000,"role":"user","content":"What is 2+2?","session_id":"abc12345-0000","tool_name":"","tool_input":"","tool_result":""}
{"ts_nano":"1700000000000000001","role":"tool","content":"{\"result\":4}","session_id":"abc12345-0000","tool_name":"calculator","tool_input":"{\"operation\":\"add\",\"a\":2,\"b\":2}","tool_result":"{\"result\":4}"}
`

func TestValidTable(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"otel_logs", "default.otel_logs", "_t1"} {
		assert.True(t, ValidTable(name), name)
	}
	for _, name := range []string{"", "otel_logs; DROP TABLE x", "a.b.c", "1abc", "logs`"} {
		assert.False(t, ValidTable(name), name)
	}
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	q := buildQuery("otel_logs", prefixParam)

	assert.Contains(t, q, "FROM otel_logs")
	assert.Contains(t, q, "startsWith(LogAttributes['session.id'], {prefix:String})")
	assert.Contains(t, q, "LogAttributes['tool.input'] AS tool_input")
	assert.NotContains(t, q, "ORDER BY")
}

func TestParseJSONEachRow(t *testing.T) {
	t.Parallel()

	rows := parseJSONEachRow([]byte(sampleOutput), false)

	require.Len(t, rows, 3)
	assert.Equal(t, "assistant", rows[0].Role)
	assert.Equal(t, time.Unix(0, 1700000000000000000).UTC(), rows[1].Timestamp)
	assert.Equal(t, "calculator", rows[2].ToolName)
	assert.JSONEq(t, `{"operation":"add","a":2,"b":2}`, rows[2].ToolInput.String())
}

func TestParseJSONEachRow_SkipsBadLines(t *testing.T) {
	t.Parallel()

	out := "not json\n" + `{"ts_nano":"x","role":"user"}` + "\n" +
		`{"ts_nano":"5","role":"user","content":"ok","session_id":"s"}` + "\n"

	rows := parseJSONEachRow([]byte(out), false)

	require.Len(t, rows, 1)
	assert.Equal(t, "ok", rows[0].Content)
}

func TestParseJSONEachRow_TruncatedDropsPartialLine(t *testing.T) {
	t.Parallel()

	full := `{"ts_nano":"5","role":"user","content":"ok","session_id":"s"}` + "\n"
	partial := full + `{"ts_nano":"6","role":"assis`

	assert.Len(t, parseJSONEachRow([]byte(partial), true), 1)
	assert.Empty(t, parseJSONEachRow([]byte(`{"ts_nano":"6"`), true))
}

func TestCappedBuffer(t *testing.T) {
	t.Parallel()

	c := newCappedBuffer(10)

	n, err := c.Write([]byte("12345"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.False(t, c.truncated)

	n, err = c.Write([]byte("6789012"))
	require.NoError(t, err)
	assert.Equal(t, 7, n, "reports full length so the producer keeps going")
	assert.True(t, c.truncated)
	assert.Equal(t, "1234567890", c.buf.String())

	_, _ = c.Write([]byte("more"))
	assert.Equal(t, 10, c.buf.Len())
}

func TestExecSource_RowsByPrefix(t *testing.T) {
	t.Parallel()

	backend := &execBackend{
		containers: []discovery.Container{{ID: "c0ffee0000011111", Names: []string{"/clickstack"}}},
		output:     sampleOutput,
	}
	d := discovery.NewDiscoverer(backend, discovery.ByNamePattern("clickstack"))

	src, err := NewExecSource(context.Background(), backend, d, DefaultTable, 0)
	require.NoError(t, err)
	assert.Equal(t, "c0ffee0000011111", src.ContainerID())

	set, err := src.RowsByPrefix(context.Background(), "abc1'; --")
	require.NoError(t, err)

	assert.Len(t, set.Rows, 3)
	assert.False(t, set.Truncated)
	assert.Equal(t, int64(len(sampleOutput)), set.BytesRead)

	assert.Equal(t, "c0ffee0000011111", backend.gotID)
	require.NotEmpty(t, backend.gotCmd)
	assert.Equal(t, "clickhouse-client", backend.gotCmd[0])
	assert.Contains(t, backend.gotCmd, "--format=JSONEachRow")
	assert.Contains(t, backend.gotCmd, "--param_prefix=abc1'; --", "prefix travels as a bound parameter")

	require.NoError(t, src.Close())
	assert.True(t, backend.closed)
}

func TestExecSource_Truncation(t *testing.T) {
	t.Parallel()

	backend := &execBackend{
		containers: []discovery.Container{{ID: "c1", Names: []string{"/clickstack"}}},
		output:     sampleOutput,
	}
	d := discovery.NewDiscoverer(backend, discovery.ByNamePattern("clickstack"))

	firstLine := strings.Index(sampleOutput, "\n") + 1
	src, err := NewExecSource(context.Background(), backend, d, DefaultTable, int64(firstLine+10))
	require.NoError(t, err)

	set, err := src.RowsByPrefix(context.Background(), "abc")
	require.NoError(t, err)

	assert.True(t, set.Truncated)
	require.Len(t, set.Rows, 1)
	assert.Equal(t, "assistant", set.Rows[0].Role)
}

func TestExecSource_Errors(t *testing.T) {
	t.Parallel()

	t.Run("discovery failure", func(t *testing.T) {
		t.Parallel()

		backend := &execBackend{}
		d := discovery.NewDiscoverer(backend, discovery.ByNamePattern("clickstack"))

		_, err := NewExecSource(context.Background(), backend, d, DefaultTable, 0)
		require.ErrorIs(t, err, domain.ErrDiscovery)
	})

	t.Run("invalid table", func(t *testing.T) {
		t.Parallel()

		backend := &execBackend{}
		_, err := NewExecSource(context.Background(), backend, discovery.NewDiscoverer(backend), "x; y", 0)
		require.Error(t, err)
	})

	t.Run("query failure", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("Code: 60. DB::Exception: Unknown table")
		backend := &execBackend{
			containers: []discovery.Container{{ID: "c1", Names: []string{"/clickstack"}}},
			execErr:    boom,
		}
		d := discovery.NewDiscoverer(backend, discovery.ByNamePattern("clickstack"))
		src, err := NewExecSource(context.Background(), backend, d, DefaultTable, 0)
		require.NoError(t, err)

		_, err = src.RowsByPrefix(context.Background(), "abc")
		require.ErrorIs(t, err, boom)
	})
}
