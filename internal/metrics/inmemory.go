package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	AuthAttempts         map[string]uint64 // key: scheme/outcome
	KeyValidationCount   uint64
	KeyValidationTotalNs int64
	KeyVerifyCacheHits   uint64
	KeyVerifyCacheMisses uint64
	KeysIssued           map[string]uint64
	KeysDeactivated      uint64
	QuotaDecisions       map[string]uint64
	QuotaRefundedUnits   uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	keyValidationCount   uint64
	keyValidationTotalNs int64
	keyVerifyCacheHits   uint64
	keyVerifyCacheMisses uint64
	keysDeactivated      uint64
	quotaRefundedUnits   uint64

	mu             sync.Mutex
	authAttempts   map[string]uint64
	keysIssued     map[string]uint64
	quotaDecisions map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		authAttempts:   make(map[string]uint64),
		keysIssued:     make(map[string]uint64),
		quotaDecisions: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		AuthAttempts:         copyCounts(m.authAttempts),
		KeyValidationCount:   atomic.LoadUint64(&m.keyValidationCount),
		KeyValidationTotalNs: atomic.LoadInt64(&m.keyValidationTotalNs),
		KeyVerifyCacheHits:   atomic.LoadUint64(&m.keyVerifyCacheHits),
		KeyVerifyCacheMisses: atomic.LoadUint64(&m.keyVerifyCacheMisses),
		KeysIssued:           copyCounts(m.keysIssued),
		KeysDeactivated:      atomic.LoadUint64(&m.keysDeactivated),
		QuotaDecisions:       copyCounts(m.quotaDecisions),
		QuotaRefundedUnits:   atomic.LoadUint64(&m.quotaRefundedUnits),
	}
}

// IncAuthAttempt counts an authentication attempt.
func (m *InMemoryRecorder) IncAuthAttempt(scheme, outcome string) {
	m.inc(m.authAttempts, scheme+"/"+outcome)
}

// ObserveKeyValidation records key validation latency.
func (m *InMemoryRecorder) ObserveKeyValidation(duration time.Duration) {
	atomic.AddUint64(&m.keyValidationCount, 1)
	atomic.AddInt64(&m.keyValidationTotalNs, duration.Nanoseconds())
}

// IncKeyVerifyCache counts verification cache lookups.
func (m *InMemoryRecorder) IncKeyVerifyCache(hit bool) {
	if hit {
		atomic.AddUint64(&m.keyVerifyCacheHits, 1)
		return
	}
	atomic.AddUint64(&m.keyVerifyCacheMisses, 1)
}

// IncKeyIssued counts issued keys by reason.
func (m *InMemoryRecorder) IncKeyIssued(reason string) {
	m.inc(m.keysIssued, reason)
}

// IncKeyDeactivated counts explicit deactivations.
func (m *InMemoryRecorder) IncKeyDeactivated() {
	atomic.AddUint64(&m.keysDeactivated, 1)
}

// IncQuotaDecision counts quota decisions by outcome.
func (m *InMemoryRecorder) IncQuotaDecision(outcome string) {
	m.inc(m.quotaDecisions, outcome)
}

// AddQuotaRefunded counts refunded quota units.
func (m *InMemoryRecorder) AddQuotaRefunded(units int) {
	atomic.AddUint64(&m.quotaRefundedUnits, uint64(units))
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, label string) {
	m.mu.Lock()
	counts[label]++
	m.mu.Unlock()
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
