package middleware

import (
	"context"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hyp3rd/lateralcache/internal/telemetry/attrs"
	"github.com/hyp3rd/lateralcache/pkg/transport"
)

// OTelMetricsMiddleware emits OpenTelemetry metrics for remote service calls.
type OTelMetricsMiddleware struct {
	next transport.Service

	calls     metric.Int64Counter
	errors    metric.Int64Counter
	durations metric.Float64Histogram
}

// NewOTelMetricsMiddleware constructs a metrics middleware using the provided meter.
func NewOTelMetricsMiddleware(next transport.Service, meter metric.Meter) (transport.Service, error) {
	calls, err := meter.Int64Counter("lateral.calls")
	if err != nil {
		return nil, ewrap.Wrap(err, "create counter")
	}

	errs, err := meter.Int64Counter("lateral.errors")
	if err != nil {
		return nil, ewrap.Wrap(err, "create error counter")
	}

	durations, err := meter.Float64Histogram("lateral.duration.ms")
	if err != nil {
		return nil, ewrap.Wrap(err, "create histogram")
	}

	return &OTelMetricsMiddleware{next: next, calls: calls, errors: errs, durations: durations}, nil
}

// Update implements Service.Update with metrics.
func (mw *OTelMetricsMiddleware) Update(ctx context.Context, region, key string, value []byte) error {
	start := time.Now()
	err := mw.next.Update(ctx, region, key, value)
	mw.rec(ctx, "Update", region, start, err, attribute.Int(attrs.AttrKeyLength, len(key)))

	return err
}

// Remove implements Service.Remove with metrics.
func (mw *OTelMetricsMiddleware) Remove(ctx context.Context, region, key string) error {
	start := time.Now()
	err := mw.next.Remove(ctx, region, key)
	mw.rec(ctx, "Remove", region, start, err, attribute.Int(attrs.AttrKeyLength, len(key)))

	return err
}

// RemoveAll implements Service.RemoveAll with metrics.
func (mw *OTelMetricsMiddleware) RemoveAll(ctx context.Context, region string) error {
	start := time.Now()
	err := mw.next.RemoveAll(ctx, region)
	mw.rec(ctx, "RemoveAll", region, start, err)

	return err
}

// Get implements Service.Get with metrics.
func (mw *OTelMetricsMiddleware) Get(ctx context.Context, region, key string) ([]byte, bool, error) {
	start := time.Now()
	v, ok, err := mw.next.Get(ctx, region, key)
	mw.rec(ctx, "Get", region, start, err, attribute.Int(attrs.AttrKeyLength, len(key)), attribute.Bool(attrs.AttrFound, ok))

	return v, ok, err
}

// GetMatching implements Service.GetMatching with metrics.
func (mw *OTelMetricsMiddleware) GetMatching(ctx context.Context, region, pattern string) (map[string][]byte, error) {
	start := time.Now()
	out, err := mw.next.GetMatching(ctx, region, pattern)
	mw.rec(ctx, "GetMatching", region, start, err, attribute.Int(attrs.AttrResultCount, len(out)))

	return out, err
}

// GetMultiple implements Service.GetMultiple with metrics.
func (mw *OTelMetricsMiddleware) GetMultiple(ctx context.Context, region string, keys []string) (map[string][]byte, error) {
	start := time.Now()
	out, err := mw.next.GetMultiple(ctx, region, keys)
	mw.rec(ctx, "GetMultiple", region, start, err,
		attribute.Int(attrs.AttrKeysCount, len(keys)), attribute.Int(attrs.AttrResultCount, len(out)))

	return out, err
}

// GetKeySet implements Service.GetKeySet with metrics.
func (mw *OTelMetricsMiddleware) GetKeySet(ctx context.Context, region string) ([]string, error) {
	start := time.Now()
	keys, err := mw.next.GetKeySet(ctx, region)
	mw.rec(ctx, "GetKeySet", region, start, err, attribute.Int(attrs.AttrKeysCount, len(keys)))

	return keys, err
}

// Dispose implements Service.Dispose with metrics.
func (mw *OTelMetricsMiddleware) Dispose(ctx context.Context, region string) error {
	start := time.Now()
	err := mw.next.Dispose(ctx, region)
	mw.rec(ctx, "Dispose", region, start, err)

	return err
}

// rec records call count, errors and duration with attributes.
func (mw *OTelMetricsMiddleware) rec(ctx context.Context, method, region string, start time.Time, err error, extra ...attribute.KeyValue) {
	base := []attribute.KeyValue{attribute.String("method", method), attribute.String(attrs.AttrRegion, region)}
	if len(extra) > 0 {
		base = append(base, extra...)
	}

	mw.calls.Add(ctx, 1, metric.WithAttributes(base...))
	mw.durations.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(base...))

	if err != nil {
		mw.errors.Add(ctx, 1, metric.WithAttributes(base...))
	}
}
