package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/trajlog/internal/config"
	"github.com/gosuda/trajlog/internal/discovery"
	"github.com/gosuda/trajlog/internal/domain"
)

func strategyNames(ss []discovery.Strategy) []string {
	names := make([]string, 0, len(ss))
	for _, s := range ss {
		names = append(names, s.Name())
	}
	return names
}

func TestStrategies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ch   config.ClickHouseConfig
		want int
	}{
		{name: "nothing configured", ch: config.ClickHouseConfig{}, want: 0},
		{name: "defaults", ch: config.ClickHouseConfig{Image: "clickhouse/clickstack-all-in-one", NamePattern: "clickstack"}, want: 2},
		{
			name: "everything",
			ch:   config.ClickHouseConfig{Container: "ch", Image: "img", Label: "app=clickstack", NamePattern: "clickstack"},
			want: 4,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := Strategies(&config.Config{ClickHouse: tc.ch})
			assert.Len(t, got, tc.want)
		})
	}
}

func TestStrategies_OverrideFirst(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{ClickHouse: config.ClickHouseConfig{Container: "ch", Image: "img", NamePattern: "clickstack"}}
	got := strategyNames(Strategies(cfg))

	require.Len(t, got, 3)
	assert.Equal(t, discovery.ByName("ch").Name(), got[0])
	assert.Equal(t, discovery.ByAncestor("img").Name(), got[1])
	assert.Equal(t, discovery.ByNamePattern("clickstack").Name(), got[2])
}

func TestDiscoveryBackend_CLIMode(t *testing.T) {
	t.Parallel()

	b, err := DiscoveryBackend(&config.Config{Docker: config.DockerConfig{Mode: config.DockerModeCLI}})
	require.NoError(t, err)
	assert.IsType(t, &discovery.CLIBackend{}, b)
	assert.NoError(t, b.Close())
}

func TestOpen_UnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Backend: "kafka", Telemetry: config.TelemetryConfig{Enabled: true}}

	_, _, err := OpenSink(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown backend")

	_, err = OpenSource(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown backend")
}

func TestOpenSink_RelativeEndpoint(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Backend:   config.BackendOTLP,
		Telemetry: config.TelemetryConfig{Enabled: true, Endpoint: "localhost:4317", ServiceName: "svc"},
	}

	sink, shutdown, err := OpenSink(context.Background(), cfg, nil)

	require.ErrorContains(t, err, "OTEL_EXPORTER_OTLP_ENDPOINT")
	assert.Nil(t, sink)
	assert.Nil(t, shutdown)
}

func TestOpenSink_Disabled(t *testing.T) {
	t.Parallel()

	sink, shutdown, err := OpenSink(context.Background(), &config.Config{Backend: config.BackendOTLP}, nil)

	require.ErrorIs(t, err, domain.ErrTelemetryDisabled)
	assert.Nil(t, sink)
	assert.Nil(t, shutdown)
}
