package lateral

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyp3rd/lateralcache/internal/cluster"
)

// NoWaitStats is a snapshot of an adapter's counters.
type NoWaitStats struct {
	Region  string `json:"region"`
	Peer    string `json:"peer"`
	Puts    uint64 `json:"puts"`
	Gets    uint64 `json:"gets"`
	Removes uint64 `json:"removes"`
	Errors  uint64 `json:"errors"`
}

// NoWait routes one region's operations to one peer. Failures never reach the caller:
// mutations report success and reads report not found, while the manager falls back to
// a zombie until the monitor repairs the connection.
type NoWait struct {
	manager *Manager
	region  string

	disposed atomic.Bool
	puts     atomic.Uint64
	gets     atomic.Uint64
	removes  atomic.Uint64
	errs     atomic.Uint64
}

func newNoWait(m *Manager, region string) *NoWait {
	return &NoWait{manager: m, region: region}
}

// Region returns the region name.
func (nw *NoWait) Region() string { return nw.region }

// Endpoint returns the peer endpoint.
func (nw *NoWait) Endpoint() cluster.Endpoint { return nw.manager.endpoint }

// Manager returns the owning peer manager.
func (nw *NoWait) Manager() *Manager { return nw.manager }

// Update replicates a put.
func (nw *NoWait) Update(ctx context.Context, key string, value []byte) {
	if nw.disposed.Load() {
		return
	}

	nw.puts.Add(1)
	nw.check("update", nw.manager.Service().Update(ctx, nw.region, key, value))
}

// Remove replicates a removal.
func (nw *NoWait) Remove(ctx context.Context, key string) {
	if nw.disposed.Load() {
		return
	}

	nw.removes.Add(1)
	nw.check("remove", nw.manager.Service().Remove(ctx, nw.region, key))
}

// RemoveAll replicates a region clear.
func (nw *NoWait) RemoveAll(ctx context.Context) {
	if nw.disposed.Load() {
		return
	}

	nw.check("removeAll", nw.manager.Service().RemoveAll(ctx, nw.region))
}

// Get reads key from the peer.
func (nw *NoWait) Get(ctx context.Context, key string) ([]byte, bool) {
	if nw.disposed.Load() {
		return nil, false
	}

	nw.gets.Add(1)

	value, ok, err := nw.manager.Service().Get(ctx, nw.region, key)
	if nw.check("get", err) {
		return nil, false
	}

	return value, ok
}

// GetMatching reads the entries whose key matches pattern.
func (nw *NoWait) GetMatching(ctx context.Context, pattern string) map[string][]byte {
	if nw.disposed.Load() {
		return map[string][]byte{}
	}

	nw.gets.Add(1)

	out, err := nw.manager.Service().GetMatching(ctx, nw.region, pattern)
	if nw.check("getMatching", err) || out == nil {
		return map[string][]byte{}
	}

	return out
}

// GetMultiple reads several keys, one request per key.
func (nw *NoWait) GetMultiple(ctx context.Context, keys []string) map[string][]byte {
	if nw.disposed.Load() {
		return map[string][]byte{}
	}

	nw.gets.Add(uint64(len(keys)))

	out, err := nw.manager.Service().GetMultiple(ctx, nw.region, keys)
	if nw.check("getMultiple", err) || out == nil {
		return map[string][]byte{}
	}

	return out
}

// GetKeySet reads the peer's keys for the region. Nil means no answer.
func (nw *NoWait) GetKeySet(ctx context.Context) []string {
	if nw.disposed.Load() {
		return nil
	}

	keys, err := nw.manager.Service().GetKeySet(ctx, nw.region)
	if nw.check("getKeySet", err) {
		return nil
	}

	return keys
}

// Dispose closes the peer connection shared by every region of this manager and stops
// this adapter.
func (nw *NoWait) Dispose(ctx context.Context) {
	if nw.disposed.Swap(true) {
		return
	}

	err := nw.manager.Service().Dispose(ctx, nw.region)
	if err != nil {
		nw.manager.logger.Debug("dispose lateral adapter", zap.String("region", nw.region), zap.Error(err))
	}
}

// Disposed reports whether Dispose was called.
func (nw *NoWait) Disposed() bool { return nw.disposed.Load() }

// Stats returns a snapshot of the counters.
func (nw *NoWait) Stats() NoWaitStats {
	return NoWaitStats{
		Region:  nw.region,
		Peer:    nw.manager.endpoint.String(),
		Puts:    nw.puts.Load(),
		Gets:    nw.gets.Load(),
		Removes: nw.removes.Load(),
		Errors:  nw.errs.Load(),
	}
}

// check absorbs err, reporting whether there was one.
func (nw *NoWait) check(op string, err error) bool {
	if err == nil {
		return false
	}

	nw.errs.Add(1)
	nw.manager.logger.Info("lateral operation failed",
		zap.String("op", op), zap.String("region", nw.region), zap.Error(err))
	nw.manager.handleError(err)

	return true
}
