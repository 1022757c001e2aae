package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncAuthAttempt(scheme, outcome string)       {}
func (n *NoopRecorder) ObserveKeyValidation(duration time.Duration) {}
func (n *NoopRecorder) IncKeyVerifyCache(hit bool)                  {}
func (n *NoopRecorder) IncKeyIssued(reason string)                  {}
func (n *NoopRecorder) IncKeyDeactivated()                          {}
func (n *NoopRecorder) IncQuotaDecision(outcome string)             {}
func (n *NoopRecorder) AddQuotaRefunded(units int)                  {}
