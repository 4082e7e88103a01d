// Package traced decorates a records.Adapter with OpenTelemetry spans and
// metrics.
package traced

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	records "github.com/goliatone/go-records"
)

const instrumentationName = "github.com/goliatone/go-records"

// Option configures the decorator.
type Option func(*Adapter)

// WithTracerProvider sets a custom tracer provider.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(a *Adapter) {
		a.tracer = provider.Tracer(instrumentationName)
	}
}

// WithMeterProvider sets a custom meter provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(a *Adapter) {
		a.meter = provider.Meter(instrumentationName)
	}
}

// Adapter wraps another adapter. Every call opens a span named
// "records.<op>" and records a count, a duration and an error count.
type Adapter struct {
	next   records.Adapter
	tracer trace.Tracer
	meter  metric.Meter

	calls    metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

// Wrap returns next decorated with telemetry.
func Wrap(next records.Adapter, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		next:   next,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	a.calls, err = a.meter.Int64Counter(
		"records.adapter.calls",
		metric.WithDescription("Number of adapter calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	a.errors, err = a.meter.Int64Counter(
		"records.adapter.errors",
		metric.WithDescription("Number of failed adapter calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	a.duration, err = a.meter.Float64Histogram(
		"records.adapter.duration",
		metric.WithDescription("Adapter call duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Unwrap returns the decorated adapter.
func (a *Adapter) Unwrap() records.Adapter { return a.next }

func (a *Adapter) start(ctx context.Context, op string, t *records.RecordType, key any) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{
		attribute.String("records.op", op),
		attribute.String("records.type", t.Name()),
	}
	spanAttrs := attrs
	if key != nil {
		spanAttrs = append(append([]attribute.KeyValue(nil), attrs...), attribute.String("records.key", records.KeyString(key)))
	}
	ctx, span := a.tracer.Start(ctx, "records."+op, trace.WithAttributes(spanAttrs...))
	started := time.Now()
	return ctx, func(err error) {
		set := metric.WithAttributes(attrs...)
		a.calls.Add(ctx, 1, set)
		a.duration.Record(ctx, float64(time.Since(started).Microseconds())/1000, set)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			a.errors.Add(ctx, 1, set)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// SaveRecord implements records.Adapter.
func (a *Adapter) SaveRecord(ctx context.Context, r *records.Record) error {
	ctx, done := a.start(ctx, "save", r.Type(), r.Key())
	err := a.next.SaveRecord(ctx, r)
	done(err)
	return err
}

// DeleteRecord implements records.Adapter.
func (a *Adapter) DeleteRecord(ctx context.Context, r *records.Record) error {
	ctx, done := a.start(ctx, "delete", r.Type(), r.Key())
	err := a.next.DeleteRecord(ctx, r)
	done(err)
	return err
}

// FindAll implements records.Adapter.
func (a *Adapter) FindAll(ctx context.Context, t *records.RecordType) (*records.Collection, error) {
	ctx, done := a.start(ctx, "find_all", t, nil)
	c, err := a.next.FindAll(ctx, t)
	done(err)
	return c, err
}

// FindQuery implements records.Adapter.
func (a *Adapter) FindQuery(ctx context.Context, t *records.RecordType, params records.Params) (*records.Collection, error) {
	ctx, done := a.start(ctx, "find_query", t, nil)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("records.params", len(params)))
	c, err := a.next.FindQuery(ctx, t, params)
	done(err)
	return c, err
}

// FindByKey implements records.Adapter.
func (a *Adapter) FindByKey(ctx context.Context, t *records.RecordType, key any, params records.Params) (*records.Record, error) {
	ctx, done := a.start(ctx, "find_by_key", t, key)
	rec, err := a.next.FindByKey(ctx, t, key, params)
	done(err)
	return rec, err
}

var _ records.Adapter = (*Adapter)(nil)
