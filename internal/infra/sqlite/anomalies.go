package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/possuite/auditguard/internal/domain"
)

// anomalySelect joins each anomaly to its most recent resolution event.
const anomalySelect = `
	SELECT a.id, a.anomaly_type, a.severity, a.description, a.timestamp,
		a.evidence, a.recommendations, r.resolved_by, r.resolved_at
	FROM anomalies a
	LEFT JOIN anomaly_resolutions r ON r.seq = (
		SELECT MAX(seq) FROM anomaly_resolutions WHERE anomaly_id = a.id
	)`

// ─── Anomaly Operations ─────────────────────────────────────────────────────

// InsertAnomalies persists a detection batch in one transaction.
func (db *DB) InsertAnomalies(ctx context.Context, anomalies []domain.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin insert anomalies", err)
	}
	defer tx.Rollback()

	created := formatTime(time.Now())
	for _, a := range anomalies {
		recs, err := json.Marshal(a.Recommendations)
		if err != nil {
			return fmt.Errorf("%w: anomaly %s recommendations: %v", domain.ErrSerialization, a.ID, err)
		}
		evidence := a.Evidence
		if len(evidence) == 0 {
			evidence = json.RawMessage("{}")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO anomalies (id, anomaly_type, severity, description, timestamp,
				evidence, recommendations, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, string(a.Type), string(a.Severity), a.Description, formatTime(a.Timestamp),
			string(evidence), string(recs), created)
		if err != nil {
			return storageErr("insert anomaly", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit anomalies", err)
	}
	return nil
}

// GetAnomaly returns one anomaly with its resolution state.
func (db *DB) GetAnomaly(ctx context.Context, id string) (*domain.Anomaly, error) {
	row := db.db.QueryRowContext(ctx, anomalySelect+` WHERE a.id = ?`, id)
	a, err := scanAnomaly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: anomaly %q", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnomalies returns anomalies newest first.
func (db *DB) ListAnomalies(ctx context.Context, f domain.AnomalyFilter) ([]domain.Anomaly, error) {
	q := anomalySelect
	var args []any
	if f.Resolved != nil {
		if *f.Resolved {
			q += ` WHERE r.seq IS NOT NULL`
		} else {
			q += ` WHERE r.seq IS NULL`
		}
	}
	q += ` ORDER BY a.timestamp DESC, a.rowid DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list anomalies", err)
	}
	defer rows.Close()

	var result []domain.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list anomalies", err)
	}
	return result, nil
}

// CountAnomalies returns the total and unresolved anomaly counts.
func (db *DB) CountAnomalies(ctx context.Context) (total, unresolved int64, err error) {
	err = db.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN NOT EXISTS (
				SELECT 1 FROM anomaly_resolutions r WHERE r.anomaly_id = a.id
			) THEN 1 ELSE 0 END), 0)
		FROM anomalies a
	`).Scan(&total, &unresolved)
	if err != nil {
		return 0, 0, storageErr("count anomalies", err)
	}
	return total, unresolved, nil
}

// ─── Resolution Events ──────────────────────────────────────────────────────

// AppendResolution records a resolution event. The anomaly row itself is
// never modified.
func (db *DB) AppendResolution(ctx context.Context, r domain.Resolution) error {
	var exists int
	err := db.db.QueryRowContext(ctx, `SELECT 1 FROM anomalies WHERE id = ?`, r.AnomalyID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: anomaly %q", domain.ErrNotFound, r.AnomalyID)
	}
	if err != nil {
		return storageErr("lookup anomaly", err)
	}

	_, err = db.db.ExecContext(ctx, `
		INSERT INTO anomaly_resolutions (id, anomaly_id, resolved_by, resolved_at)
		VALUES (?, ?, ?, ?)
	`, r.ID, r.AnomalyID, r.ResolvedBy, formatTime(r.ResolvedAt))
	if err != nil {
		return storageErr("append resolution", err)
	}
	return nil
}

// ListResolutions returns the resolution trail for an anomaly, oldest first.
func (db *DB) ListResolutions(ctx context.Context, anomalyID string) ([]domain.Resolution, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, anomaly_id, resolved_by, resolved_at
		FROM anomaly_resolutions WHERE anomaly_id = ? ORDER BY seq ASC
	`, anomalyID)
	if err != nil {
		return nil, storageErr("list resolutions", err)
	}
	defer rows.Close()

	var result []domain.Resolution
	for rows.Next() {
		var (
			r  domain.Resolution
			at string
		)
		if err := rows.Scan(&r.ID, &r.AnomalyID, &r.ResolvedBy, &at); err != nil {
			return nil, storageErr("scan resolution", err)
		}
		if r.ResolvedAt, err = parseTime("resolved_at", at); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list resolutions", err)
	}
	return result, nil
}

func scanAnomaly(r rowScanner) (domain.Anomaly, error) {
	var (
		a                        domain.Anomaly
		typ, sev, ts, evid, recs string
		resolvedBy, resolvedAt   sql.NullString
	)
	err := r.Scan(&a.ID, &typ, &sev, &a.Description, &ts, &evid, &recs, &resolvedBy, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, err
	}
	if err != nil {
		return a, storageErr("scan anomaly", err)
	}

	if a.Type, err = domain.ParseAnomalyType(typ); err != nil {
		return a, fmt.Errorf("anomaly %s: %w", a.ID, err)
	}
	if a.Severity, err = domain.ParseSeverity(sev); err != nil {
		return a, fmt.Errorf("anomaly %s: %w", a.ID, err)
	}
	if a.Timestamp, err = parseTime("timestamp", ts); err != nil {
		return a, fmt.Errorf("anomaly %s: %w", a.ID, err)
	}
	a.Evidence = json.RawMessage(evid)
	if err := json.Unmarshal([]byte(recs), &a.Recommendations); err != nil {
		return a, fmt.Errorf("%w: anomaly %s recommendations: %v", domain.ErrDecode, a.ID, err)
	}
	if resolvedAt.Valid {
		at, err := parseTime("resolved_at", resolvedAt.String)
		if err != nil {
			return a, fmt.Errorf("anomaly %s: %w", a.ID, err)
		}
		a.Resolved = true
		a.ResolvedAt = &at
		a.ResolvedBy = resolvedBy.String
	}
	return a, nil
}
