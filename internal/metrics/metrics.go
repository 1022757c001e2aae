// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Outcome labels for quota decisions.
const (
	QuotaAdmitted      = "admitted"
	QuotaBatchExceeded = "batch_exceeded"
	QuotaDailyExceeded = "daily_exceeded"
	QuotaDisabled      = "disabled"
	QuotaError         = "error"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Authentication
	IncAuthAttempt(scheme, outcome string) // outcome: "success" or "failure"
	ObserveKeyValidation(duration time.Duration)
	IncKeyVerifyCache(hit bool)

	// Credential lifecycle
	IncKeyIssued(reason string) // reason: "rotate" or "self_service"
	IncKeyDeactivated()

	// Quota
	IncQuotaDecision(outcome string)
	AddQuotaRefunded(units int)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
