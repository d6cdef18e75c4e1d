package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/possuite/auditguard/internal/domain"
)

// ─── Security Config Operations ─────────────────────────────────────────────

// GetSecurityConfig returns the saved configuration, or the defaults when
// none has been saved yet.
func (db *DB) GetSecurityConfig(ctx context.Context) (domain.SecurityConfig, error) {
	var (
		c                         domain.SecurityConfig
		chain, tm, anomaly, rtMon int
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT enable_chain_validation, enable_time_validation, enable_anomaly_detection,
			max_time_drift, min_transaction_interval, suspicious_amount_threshold,
			compliance_country, retention_period, enable_real_time_monitoring
		FROM security_config WHERE id = 'default'
	`).Scan(&chain, &tm, &anomaly, &c.MaxTimeDrift, &c.MinTransactionInterval,
		&c.SuspiciousAmountThreshold, &c.ComplianceCountry, &c.RetentionPeriod, &rtMon)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultSecurityConfig(), nil
	}
	if err != nil {
		return domain.SecurityConfig{}, storageErr("get security config", err)
	}
	c.EnableChainValidation = chain == 1
	c.EnableTimeValidation = tm == 1
	c.EnableAnomalyDetection = anomaly == 1
	c.EnableRealTimeMonitoring = rtMon == 1
	return c, nil
}

// SaveSecurityConfig validates and upserts the singleton row.
func (db *DB) SaveSecurityConfig(ctx context.Context, c domain.SecurityConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := formatTime(time.Now())
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO security_config (id, enable_chain_validation, enable_time_validation,
			enable_anomaly_detection, max_time_drift, min_transaction_interval,
			suspicious_amount_threshold, compliance_country, retention_period,
			enable_real_time_monitoring, created_at, updated_at)
		VALUES ('default', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enable_chain_validation     = excluded.enable_chain_validation,
			enable_time_validation      = excluded.enable_time_validation,
			enable_anomaly_detection    = excluded.enable_anomaly_detection,
			max_time_drift              = excluded.max_time_drift,
			min_transaction_interval    = excluded.min_transaction_interval,
			suspicious_amount_threshold = excluded.suspicious_amount_threshold,
			compliance_country          = excluded.compliance_country,
			retention_period            = excluded.retention_period,
			enable_real_time_monitoring = excluded.enable_real_time_monitoring,
			updated_at                  = excluded.updated_at
	`, boolInt(c.EnableChainValidation), boolInt(c.EnableTimeValidation),
		boolInt(c.EnableAnomalyDetection), c.MaxTimeDrift, c.MinTransactionInterval,
		c.SuspiciousAmountThreshold, c.ComplianceCountry, c.RetentionPeriod,
		boolInt(c.EnableRealTimeMonitoring), now, now)
	if err != nil {
		return storageErr("save security config", err)
	}
	return nil
}
