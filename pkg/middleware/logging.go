// Package middleware provides decorators for transport.Service. They wrap the live
// remote service of every peer manager to log, measure and trace lateral calls.
package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyp3rd/lateralcache/pkg/transport"
)

// LoggingMiddleware logs every remote call with its duration.
// Must implement the transport.Service interface.
type LoggingMiddleware struct {
	next   transport.Service
	logger *zap.Logger
}

// NewLoggingMiddleware returns a new LoggingMiddleware.
func NewLoggingMiddleware(next transport.Service, logger *zap.Logger) transport.Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LoggingMiddleware{next: next, logger: logger}
}

func (mw LoggingMiddleware) log(method, region string, begin time.Time, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("method", method),
		zap.String("region", region),
		zap.Duration("took", time.Since(begin)))

	if err != nil {
		mw.logger.Warn("lateral call failed", append(fields, zap.Error(err))...)

		return
	}

	mw.logger.Debug("lateral call", fields...)
}

// Update logs the replicated put.
func (mw LoggingMiddleware) Update(ctx context.Context, region, key string, value []byte) (err error) {
	defer func(begin time.Time) {
		mw.log("Update", region, begin, err, zap.String("key", key), zap.Int("size", len(value)))
	}(time.Now())

	return mw.next.Update(ctx, region, key, value)
}

// Remove logs the replicated removal.
func (mw LoggingMiddleware) Remove(ctx context.Context, region, key string) (err error) {
	defer func(begin time.Time) {
		mw.log("Remove", region, begin, err, zap.String("key", key))
	}(time.Now())

	return mw.next.Remove(ctx, region, key)
}

// RemoveAll logs the replicated clear.
func (mw LoggingMiddleware) RemoveAll(ctx context.Context, region string) (err error) {
	defer func(begin time.Time) {
		mw.log("RemoveAll", region, begin, err)
	}(time.Now())

	return mw.next.RemoveAll(ctx, region)
}

// Get logs the remote read.
func (mw LoggingMiddleware) Get(ctx context.Context, region, key string) (value []byte, found bool, err error) {
	defer func(begin time.Time) {
		mw.log("Get", region, begin, err, zap.String("key", key), zap.Bool("found", found))
	}(time.Now())

	return mw.next.Get(ctx, region, key)
}

// GetMatching logs the remote pattern read.
func (mw LoggingMiddleware) GetMatching(ctx context.Context, region, pattern string) (out map[string][]byte, err error) {
	defer func(begin time.Time) {
		mw.log("GetMatching", region, begin, err, zap.String("pattern", pattern), zap.Int("results", len(out)))
	}(time.Now())

	return mw.next.GetMatching(ctx, region, pattern)
}

// GetMultiple logs the remote multi read.
func (mw LoggingMiddleware) GetMultiple(ctx context.Context, region string, keys []string) (out map[string][]byte, err error) {
	defer func(begin time.Time) {
		mw.log("GetMultiple", region, begin, err, zap.Int("keys", len(keys)), zap.Int("results", len(out)))
	}(time.Now())

	return mw.next.GetMultiple(ctx, region, keys)
}

// GetKeySet logs the remote keyset read.
func (mw LoggingMiddleware) GetKeySet(ctx context.Context, region string) (keys []string, err error) {
	defer func(begin time.Time) {
		mw.log("GetKeySet", region, begin, err, zap.Int("keys", len(keys)))
	}(time.Now())

	return mw.next.GetKeySet(ctx, region)
}

// Dispose logs the connection release.
func (mw LoggingMiddleware) Dispose(ctx context.Context, region string) (err error) {
	defer func(begin time.Time) {
		mw.log("Dispose", region, begin, err)
	}(time.Now())

	return mw.next.Dispose(ctx, region)
}
