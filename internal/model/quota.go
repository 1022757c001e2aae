package model

import "time"

// DayLayout formats the UTC calendar day a quota counter belongs to.
const DayLayout = "2006-01-02"

// DayKey returns the UTC day identifier for t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// NextReset returns the next UTC midnight after t.
func NextReset(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// QuotaUsage is a point-in-time view of a user's daily quota.
type QuotaUsage struct {
	Day        string    `json:"day"`
	Used       int64     `json:"used"`
	DailyLimit int       `json:"dailyLimit"`
	BatchLimit int       `json:"batchLimit"`
	Remaining  int64     `json:"remaining"`
	Enabled    bool      `json:"collectionEnabled"`
	ResetAt    time.Time `json:"resetAt"`
}
