package application

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/symphainy/trafficcop/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/symphainy/trafficcop/internal/application"

type Option func(*options)

type options struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	newID   func() string
	emitter metricEmitter
}

// metricEmitter receives the metrics components report about their own work.
// Emitting never fails the caller.
type metricEmitter interface {
	Emit(ctx context.Context, metric CollectMetricsCommand)
}

type discardEmitter struct{}

func (discardEmitter) Emit(context.Context, CollectMetricsCommand) {}

func withEmitter(emitter metricEmitter) Option {
	return func(o *options) {
		o.emitter = emitter
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithIDGenerator replaces the uuid generator used for session, conflict,
// metric, alert, event and workflow run ids.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		o.newID = newID
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	if o.emitter == nil {
		o.emitter = discardEmitter{}
	}
	return o
}

func startSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func sessionAttr(id domain.SessionID) attribute.KeyValue {
	return attribute.String("trafficcop.session_id", string(id))
}

func keyAttr(key string) attribute.KeyValue {
	return attribute.String("trafficcop.key", key)
}

func addressAttrs(address domain.StateAddress) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("trafficcop.scope", string(address.Scope)),
		attribute.String("trafficcop.dimension", string(address.Dimension)),
		keyAttr(address.Key),
	}
}

func addressLogAttrs(address domain.StateAddress) []any {
	return []any{
		slog.String("scope", string(address.Scope)),
		slog.String("dimension", string(address.Dimension)),
		slog.String("key", address.Key),
	}
}
