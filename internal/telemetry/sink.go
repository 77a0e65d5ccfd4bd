// Package telemetry exports trajectory events as OpenTelemetry log records.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/gosuda/trajlog/internal/domain"
	"github.com/gosuda/trajlog/internal/emitter"
)

const (
	instrumentationVersion = "1.0.0"
	serviceNameKey         = "service.name"
	recordBody             = "message"
)

// Config selects the exporter target.
type Config struct {
	ServiceName string
	Endpoint    string // OTLP/gRPC endpoint URL, e.g. http://localhost:4317
}

// Sink emits each event as one log record through a simple (unbatched)
// processor, so a record is exported before Emit returns.
type Sink struct {
	provider *sdklog.LoggerProvider
	logger   otellog.Logger
}

var _ domain.EventSink = (*Sink)(nil)

// New dials nothing up front; the gRPC exporter connects lazily.
// Export failures are routed to onError via the OpenTelemetry global error handler.
func New(ctx context.Context, cfg Config, onError emitter.ErrorHandler) (*Sink, error) {
	opts := []otlploggrpc.Option{}
	if cfg.Endpoint != "" {
		opts = append(opts, otlploggrpc.WithEndpointURL(cfg.Endpoint))
	}

	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry.New: exporter: %w", err)
	}

	InstallErrorHandler(onError)
	return NewWithExporter(cfg.ServiceName, exporter), nil
}

// NewWithExporter builds a sink around an arbitrary exporter.
func NewWithExporter(serviceName string, exporter sdklog.Exporter) *Sink {
	res := resource.NewSchemaless(attribute.String(serviceNameKey, serviceName))

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)),
	)

	return &Sink{
		provider: provider,
		logger:   provider.Logger(serviceName, otellog.WithInstrumentationVersion(instrumentationVersion)),
	}
}

// InstallErrorHandler makes h the process-wide OpenTelemetry error handler.
func InstallErrorHandler(h emitter.ErrorHandler) {
	if h == nil {
		h = emitter.DiscardErrors()
	}
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		h(fmt.Errorf("telemetry: export: %w", err))
	}))
}

// Emit converts the event to a log record. The OpenTelemetry logger API does
// not return export errors; those reach the installed error handler.
func (s *Sink) Emit(ctx context.Context, ev *domain.Event) error {
	if ev == nil {
		return errors.New("telemetry.Sink.Emit: nil event")
	}
	s.logger.Emit(ctx, Record(ev))
	return nil
}

// Record maps an event onto an INFO log record whose attributes are the flattened sink record.
func Record(ev *domain.Event) otellog.Record {
	var r otellog.Record
	r.SetTimestamp(ev.Timestamp)
	r.SetObservedTimestamp(ev.Timestamp)
	r.SetSeverity(otellog.SeverityInfo)
	r.SetSeverityText("INFO")
	r.SetBody(otellog.StringValue(recordBody))

	for _, a := range ev.Attributes() {
		r.AddAttributes(otellog.String(a.Key, a.Value))
	}
	return r
}

// Shutdown flushes pending records and releases the exporter.
func (s *Sink) Shutdown(ctx context.Context) error {
	if err := s.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry.Sink.Shutdown: %w", err)
	}
	return nil
}
