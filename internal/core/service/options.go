package service

import (
	"github.com/rl1809/stock-ledger/internal/port"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/rl1809/stock-ledger/internal/core/service"

type options struct {
	logger      *zap.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	idempotency port.IdempotencyRepository
	newOrderNo  func() string
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp.Tracer(instrumentationName) }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meter = mp.Meter(instrumentationName) }
}

// WithIdempotency enables Idempotency-Key handling for order creation.
func WithIdempotency(repo port.IdempotencyRepository) Option {
	return func(o *options) { o.idempotency = repo }
}

// WithOrderNoGenerator replaces domain.NewOrderNo.
func WithOrderNoGenerator(fn func() string) Option {
	return func(o *options) { o.newOrderNo = fn }
}

func newOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
