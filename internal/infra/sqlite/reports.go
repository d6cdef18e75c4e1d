package sqlite

import (
	"context"
	"fmt"

	"github.com/possuite/auditguard/internal/domain"
)

// ─── Compliance Report Operations ───────────────────────────────────────────

// InsertReport persists a generated compliance report.
func (db *DB) InsertReport(ctx context.Context, r domain.ComplianceReport) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO compliance_reports (id, period_start, period_end, country_code,
			total_transactions, total_amount, anomalies_count, chain_integrity,
			time_consistency, generated_at, report_signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, formatTime(r.PeriodStart), formatTime(r.PeriodEnd), r.CountryCode,
		r.TotalTransactions, r.TotalAmount, r.AnomaliesCount, boolInt(r.ChainIntegrity),
		boolInt(r.TimeConsistency), formatTime(r.GeneratedAt), r.ReportSignature)
	if err != nil {
		return storageErr("insert report", err)
	}
	return nil
}

// ListReports returns reports newest first; limit <= 0 means all.
func (db *DB) ListReports(ctx context.Context, limit int) ([]domain.ComplianceReport, error) {
	q := `
		SELECT id, period_start, period_end, country_code, total_transactions, total_amount,
			anomalies_count, chain_integrity, time_consistency, generated_at, report_signature
		FROM compliance_reports ORDER BY generated_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list reports", err)
	}
	defer rows.Close()

	var result []domain.ComplianceReport
	for rows.Next() {
		var (
			r                           domain.ComplianceReport
			start, end, generated       string
			chainInt, timeConsistentInt int
		)
		if err := rows.Scan(&r.ID, &start, &end, &r.CountryCode, &r.TotalTransactions, &r.TotalAmount,
			&r.AnomaliesCount, &chainInt, &timeConsistentInt, &generated, &r.ReportSignature); err != nil {
			return nil, storageErr("scan report", err)
		}
		if r.PeriodStart, err = parseTime("period_start", start); err != nil {
			return nil, fmt.Errorf("report %s: %w", r.ID, err)
		}
		if r.PeriodEnd, err = parseTime("period_end", end); err != nil {
			return nil, fmt.Errorf("report %s: %w", r.ID, err)
		}
		if r.GeneratedAt, err = parseTime("generated_at", generated); err != nil {
			return nil, fmt.Errorf("report %s: %w", r.ID, err)
		}
		r.ChainIntegrity = chainInt == 1
		r.TimeConsistency = timeConsistentInt == 1
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list reports", err)
	}
	return result, nil
}
