package domain

import (
	"fmt"
	"regexp"
	"time"
)

// ─── Compliance Report ──────────────────────────────────────────────────────

// ComplianceReport summarizes ledger activity and integrity for a period.
// ReportSignature is an unkeyed checksum of the summary fields, not a
// cryptographic signature.
type ComplianceReport struct {
	ID                string    `json:"id"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	CountryCode       string    `json:"country_code"`
	TotalTransactions int64     `json:"total_transactions"`
	TotalAmount       float64   `json:"total_amount"`
	AnomaliesCount    int64     `json:"anomalies_count"`
	ChainIntegrity    bool      `json:"chain_integrity"`
	TimeConsistency   bool      `json:"time_consistency"`
	GeneratedAt       time.Time `json:"generated_at"`
	ReportSignature   string    `json:"report_signature"`
}

// ─── Security Config ────────────────────────────────────────────────────────

// SecurityConfig holds the tunable thresholds read by the detector and the
// reporter. It is a singleton, changed only by an explicit save.
type SecurityConfig struct {
	EnableChainValidation     bool    `json:"enable_chain_validation"`
	EnableTimeValidation      bool    `json:"enable_time_validation"`
	EnableAnomalyDetection    bool    `json:"enable_anomaly_detection"`
	MaxTimeDrift              int64   `json:"max_time_drift"`           // seconds
	MinTransactionInterval    int64   `json:"min_transaction_interval"` // ms, advisory
	SuspiciousAmountThreshold float64 `json:"suspicious_amount_threshold"`
	ComplianceCountry         string  `json:"compliance_country"`
	RetentionPeriod           int64   `json:"retention_period"` // days
	EnableRealTimeMonitoring  bool    `json:"enable_real_time_monitoring"`
}

// DefaultSecurityConfig returns the configuration used until one is saved.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableChainValidation:     true,
		EnableTimeValidation:      true,
		EnableAnomalyDetection:    true,
		MaxTimeDrift:              300,
		MinTransactionInterval:    1000,
		SuspiciousAmountThreshold: 1000.0,
		ComplianceCountry:         "FR",
		RetentionPeriod:           2190,
		EnableRealTimeMonitoring:  true,
	}
}

var countryCodeRe = regexp.MustCompile(`^[A-Z]{2}$`)

// ValidCountryCode reports whether code is an upper-case ISO 3166 alpha-2 shape.
func ValidCountryCode(code string) bool {
	return countryCodeRe.MatchString(code)
}

// Validate rejects configurations the detector cannot use.
func (c SecurityConfig) Validate() error {
	switch {
	case c.MaxTimeDrift < 0:
		return fmt.Errorf("%w: max_time_drift must be >= 0", ErrValidation)
	case c.MinTransactionInterval < 0:
		return fmt.Errorf("%w: min_transaction_interval must be >= 0", ErrValidation)
	case c.SuspiciousAmountThreshold < 0:
		return fmt.Errorf("%w: suspicious_amount_threshold must be >= 0", ErrValidation)
	case c.RetentionPeriod <= 0:
		return fmt.Errorf("%w: retention_period must be > 0", ErrValidation)
	case !ValidCountryCode(c.ComplianceCountry):
		return fmt.Errorf("%w: compliance_country %q is not a two-letter code", ErrValidation, c.ComplianceCountry)
	}
	return nil
}
