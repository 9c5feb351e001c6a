package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyp3rd/lateralcache/internal/telemetry/attrs"
	"github.com/hyp3rd/lateralcache/pkg/transport"
)

// OTelTracingMiddleware wraps transport.Service methods with OpenTelemetry spans.
type OTelTracingMiddleware struct {
	next   transport.Service
	tracer trace.Tracer
	// static attributes applied to all spans
	commonAttrs []attribute.KeyValue
}

// OTelTracingOption allows configuring the tracing middleware.
type OTelTracingOption func(*OTelTracingMiddleware)

// WithCommonAttributes sets attributes applied to all spans.
func WithCommonAttributes(attributes ...attribute.KeyValue) OTelTracingOption {
	return func(m *OTelTracingMiddleware) { m.commonAttrs = append(m.commonAttrs, attributes...) }
}

// NewOTelTracingMiddleware creates a tracing middleware.
func NewOTelTracingMiddleware(next transport.Service, tracer trace.Tracer, opts ...OTelTracingOption) transport.Service {
	mw := &OTelTracingMiddleware{next: next, tracer: tracer}
	for _, o := range opts {
		o(mw)
	}

	return mw
}

// Update implements Service.Update with tracing.
func (mw OTelTracingMiddleware) Update(ctx context.Context, region, key string, value []byte) error {
	ctx, span := mw.startSpan(ctx, "lateral.Update", region, attribute.Int(attrs.AttrKeyLength, len(key)))
	defer span.End()

	return recordErr(span, mw.next.Update(ctx, region, key, value))
}

// Remove implements Service.Remove with tracing.
func (mw OTelTracingMiddleware) Remove(ctx context.Context, region, key string) error {
	ctx, span := mw.startSpan(ctx, "lateral.Remove", region, attribute.Int(attrs.AttrKeyLength, len(key)))
	defer span.End()

	return recordErr(span, mw.next.Remove(ctx, region, key))
}

// RemoveAll implements Service.RemoveAll with tracing.
func (mw OTelTracingMiddleware) RemoveAll(ctx context.Context, region string) error {
	ctx, span := mw.startSpan(ctx, "lateral.RemoveAll", region)
	defer span.End()

	return recordErr(span, mw.next.RemoveAll(ctx, region))
}

// Get implements Service.Get with tracing.
func (mw OTelTracingMiddleware) Get(ctx context.Context, region, key string) ([]byte, bool, error) {
	ctx, span := mw.startSpan(ctx, "lateral.Get", region, attribute.Int(attrs.AttrKeyLength, len(key)))
	defer span.End()

	v, ok, err := mw.next.Get(ctx, region, key)
	span.SetAttributes(attribute.Bool(attrs.AttrFound, ok))

	return v, ok, recordErr(span, err)
}

// GetMatching implements Service.GetMatching with tracing.
func (mw OTelTracingMiddleware) GetMatching(ctx context.Context, region, pattern string) (map[string][]byte, error) {
	ctx, span := mw.startSpan(ctx, "lateral.GetMatching", region)
	defer span.End()

	out, err := mw.next.GetMatching(ctx, region, pattern)
	span.SetAttributes(attribute.Int(attrs.AttrResultCount, len(out)))

	return out, recordErr(span, err)
}

// GetMultiple implements Service.GetMultiple with tracing.
func (mw OTelTracingMiddleware) GetMultiple(ctx context.Context, region string, keys []string) (map[string][]byte, error) {
	ctx, span := mw.startSpan(ctx, "lateral.GetMultiple", region, attribute.Int(attrs.AttrKeysCount, len(keys)))
	defer span.End()

	out, err := mw.next.GetMultiple(ctx, region, keys)
	span.SetAttributes(attribute.Int(attrs.AttrResultCount, len(out)))

	return out, recordErr(span, err)
}

// GetKeySet implements Service.GetKeySet with tracing.
func (mw OTelTracingMiddleware) GetKeySet(ctx context.Context, region string) ([]string, error) {
	ctx, span := mw.startSpan(ctx, "lateral.GetKeySet", region)
	defer span.End()

	keys, err := mw.next.GetKeySet(ctx, region)
	span.SetAttributes(attribute.Int(attrs.AttrKeysCount, len(keys)))

	return keys, recordErr(span, err)
}

// Dispose implements Service.Dispose with tracing.
func (mw OTelTracingMiddleware) Dispose(ctx context.Context, region string) error {
	ctx, span := mw.startSpan(ctx, "lateral.Dispose", region)
	defer span.End()

	return recordErr(span, mw.next.Dispose(ctx, region))
}

// startSpan starts a span with common and provided attributes.
func (mw OTelTracingMiddleware) startSpan(ctx context.Context, name, region string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := mw.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	if len(mw.commonAttrs) > 0 {
		span.SetAttributes(mw.commonAttrs...)
	}

	span.SetAttributes(attribute.String(attrs.AttrRegion, region))

	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}

	return ctx, span
}

func recordErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}
