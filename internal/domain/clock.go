package domain

import (
	"fmt"
	"time"
)

// ─── AppClock ───────────────────────────────────────────────────────────────

// AppClock accumulates application usage time for one session, independent
// of the ledger entries. All times are Unix seconds.
type AppClock struct {
	SessionID       string `json:"session_id"`
	StartTime       int64  `json:"start_time"`
	TotalUsageTime  int64  `json:"total_usage_time"`
	LastActivity    int64  `json:"last_activity"`
	SystemStartTime int64  `json:"system_start_time"`
	ClockSignature  string `json:"clock_signature"`
}

// NewAppClock starts a clock for sessionID at now with zero usage.
// ClockSignature is a checksum of (start time, session id).
func NewAppClock(sessionID string, now time.Time) AppClock {
	start := now.Unix()
	return AppClock{
		SessionID:       sessionID,
		StartTime:       start,
		TotalUsageTime:  0,
		LastActivity:    start,
		SystemStartTime: start,
		ClockSignature:  Checksum(now.UTC().Format(time.RFC3339), sessionID),
	}
}

// IncrementUsageTime adds elapsed seconds to the accumulator. It is the only
// legitimate way TotalUsageTime grows; negative values are rejected so the
// accumulator never decreases.
func (c *AppClock) IncrementUsageTime(elapsed int64, now time.Time) error {
	if elapsed < 0 {
		return fmt.Errorf("%w: elapsed usage time must be >= 0, got %d", ErrValidation, elapsed)
	}
	c.TotalUsageTime += elapsed
	c.LastActivity = now.Unix()
	return nil
}

// UsageTime returns the accumulator plus the live wall-clock delta since
// StartTime. It samples the OS clock on every read, which partially defeats
// the accumulator's anti-rollback purpose: a wound-back system clock lowers
// the result. Heartbeats are the only path that advances TotalUsageTime.
func (c AppClock) UsageTime(now time.Time) int64 {
	return c.TotalUsageTime + (now.Unix() - c.StartTime)
}

// Drift is |now - UsageTime(now)| in seconds.
func (c AppClock) Drift(now time.Time) int64 {
	d := now.Unix() - c.UsageTime(now)
	if d < 0 {
		return -d
	}
	return d
}

// ValidateTimeConsistency reports whether drift is within maxDrift seconds
// (boundary inclusive).
func (c AppClock) ValidateTimeConsistency(maxDrift int64, now time.Time) bool {
	return c.Drift(now) <= maxDrift
}
