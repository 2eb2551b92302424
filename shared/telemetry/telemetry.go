package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	metricSDK "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	traceSDK "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

const (
	shutdownTimeout    = 5 * time.Second
	otlpExportInterval = 30 * time.Second
)

// Config holds telemetry configuration for a service. OTLP export is enabled only when
// OTLPEndpoint is set; Prometheus metrics are always exposed.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
}

// Telemetry is the tracer and meter of one participant. Instruments are created once per
// name and reused.
type Telemetry struct {
	tracer trace.Tracer
	meter  metric.Meter
	config Config

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewTelemetry creates a telemetry instance on the global providers
func NewTelemetry(config Config) *Telemetry {
	return &Telemetry{
		config:     config,
		tracer:     otel.Tracer(config.ServiceName),
		meter:      otel.Meter(config.ServiceName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// InitTelemetry installs the global trace and meter providers. Metrics are always readable
// through the Prometheus registry; spans and metrics are also pushed over OTLP/HTTP when an
// endpoint is configured. The returned function flushes and stops both providers.
func InitTelemetry(ctx context.Context, config Config) (*Telemetry, func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	tracerProvider, err := newTracerProvider(ctx, res, config.OTLPEndpoint)
	if err != nil {
		return nil, nil, err
	}

	meterProvider, err := newMeterProvider(ctx, res, config.OTLPEndpoint)
	if err != nil {
		shutdownProviders(tracerProvider)
		return nil, nil, err
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	shutdown := func() {
		shutdownProviders(tracerProvider, meterProvider)
	}
	return NewTelemetry(config), shutdown, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, otlpEndpoint string) (*traceSDK.TracerProvider, error) {
	opts := []traceSDK.TracerProviderOption{
		traceSDK.WithResource(res),
		traceSDK.WithSampler(traceSDK.ParentBased(traceSDK.AlwaysSample())),
	}

	if otlpEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(otlpEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, traceSDK.WithBatcher(exporter))
	}

	return traceSDK.NewTracerProvider(opts...), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, otlpEndpoint string) (*metricSDK.MeterProvider, error) {
	promExporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	opts := []metricSDK.Option{
		metricSDK.WithResource(res),
		metricSDK.WithReader(promExporter),
	}

	if otlpEndpoint != "" {
		exporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(otlpEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, metricSDK.WithReader(
			metricSDK.NewPeriodicReader(exporter, metricSDK.WithInterval(otlpExportInterval)),
		))
	}

	return metricSDK.NewMeterProvider(opts...), nil
}

type provider interface {
	Shutdown(ctx context.Context) error
}

func shutdownProviders(providers ...provider) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	for _, p := range providers {
		err = multierr.Append(err, p.Shutdown(ctx))
	}
	return err
}

// StartSpan starts a new trace span
func (t *Telemetry) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// GetServiceName returns the service name
func (t *Telemetry) GetServiceName() string {
	return t.config.ServiceName
}

func (t *Telemetry) counter(name, description string) (metric.Int64Counter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.counters[name]; ok {
		return c, nil
	}
	c, err := t.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return nil, err
	}
	t.counters[name] = c
	return c, nil
}

func (t *Telemetry) histogram(name, description string) (metric.Float64Histogram, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.histograms[name]; ok {
		return h, nil
	}
	h, err := t.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	t.histograms[name] = h
	return h, nil
}

type contextKey struct{}

// WithTelemetry injects telemetry into context
func WithTelemetry(ctx context.Context, tel *Telemetry) context.Context {
	return context.WithValue(ctx, contextKey{}, tel)
}

// FromContext extracts telemetry from context
func FromContext(ctx context.Context) *Telemetry {
	if tel, ok := ctx.Value(contextKey{}).(*Telemetry); ok {
		return tel
	}
	return nil
}

var (
	fallbackOnce sync.Once
	fallback     *Telemetry
)

// current returns the telemetry in ctx; code running outside a handler (tests, startup)
// records on an unnamed instance instead
func current(ctx context.Context) *Telemetry {
	if tel := FromContext(ctx); tel != nil {
		return tel
	}
	fallbackOnce.Do(func() {
		fallback = NewTelemetry(Config{ServiceName: "unknown"})
	})
	return fallback
}

// StartSpan starts a new trace span using telemetry from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return current(ctx).StartSpan(ctx, name, opts...)
}

// GetServiceName returns service name from context
func GetServiceName(ctx context.Context) string {
	return current(ctx).GetServiceName()
}

// RecordCounter adds value to the named counter, labelled with the service name
func RecordCounter(ctx context.Context, name, description string, value int64, attrs ...attribute.KeyValue) {
	tel := current(ctx)
	counter, err := tel.counter(name, description)
	if err != nil {
		return
	}
	attrs = append(attrs, attribute.String("service", tel.GetServiceName()))
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// RecordHistogram records a duration in seconds, labelled with the service name
func RecordHistogram(ctx context.Context, name, description string, value float64, attrs ...attribute.KeyValue) {
	tel := current(ctx)
	histogram, err := tel.histogram(name, description)
	if err != nil {
		return
	}
	attrs = append(attrs, attribute.String("service", tel.GetServiceName()))
	histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}
