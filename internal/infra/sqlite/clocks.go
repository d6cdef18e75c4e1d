package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/possuite/auditguard/internal/domain"
)

// ─── AppClock Operations ────────────────────────────────────────────────────

// SaveAppClock inserts or updates a session clock. An update that would
// lower total_usage_time is refused with ErrValidation.
func (db *DB) SaveAppClock(ctx context.Context, c domain.AppClock) error {
	if c.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", domain.ErrValidation)
	}
	now := formatTime(time.Now())
	res, err := db.db.ExecContext(ctx, `
		INSERT INTO app_clocks (session_id, start_time, total_usage_time, last_activity,
			system_start_time, clock_signature, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			total_usage_time = excluded.total_usage_time,
			last_activity    = excluded.last_activity,
			updated_at       = excluded.updated_at
		WHERE excluded.total_usage_time >= app_clocks.total_usage_time
	`, c.SessionID, c.StartTime, c.TotalUsageTime, c.LastActivity,
		c.SystemStartTime, c.ClockSignature, now, now)
	if err != nil {
		return storageErr("save app clock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("save app clock", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: usage time for session %q cannot decrease", domain.ErrValidation, c.SessionID)
	}
	return nil
}

// GetAppClock returns the clock for sessionID, or nil when none is stored.
func (db *DB) GetAppClock(ctx context.Context, sessionID string) (*domain.AppClock, error) {
	var c domain.AppClock
	err := db.db.QueryRowContext(ctx, `
		SELECT session_id, start_time, total_usage_time, last_activity, system_start_time, clock_signature
		FROM app_clocks WHERE session_id = ?
	`, sessionID).Scan(&c.SessionID, &c.StartTime, &c.TotalUsageTime, &c.LastActivity,
		&c.SystemStartTime, &c.ClockSignature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get app clock", err)
	}
	return &c, nil
}
