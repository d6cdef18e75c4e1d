package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ─── Anomaly Classification ─────────────────────────────────────────────────

// AnomalyType classifies a detected deviation.
type AnomalyType string

const (
	AnomalyTimeDrift          AnomalyType = "time_drift"
	AnomalyMissingTransaction AnomalyType = "missing_transaction"
	AnomalyChainBreak         AnomalyType = "chain_break"
	AnomalySuspiciousAmount   AnomalyType = "suspicious_amount"
	AnomalyRapidTransactions  AnomalyType = "rapid_transactions"
	AnomalyUser               AnomalyType = "user_anomaly"
	AnomalySystemTampering    AnomalyType = "system_tampering"
	AnomalyClockManipulation  AnomalyType = "clock_manipulation"
)

// AnomalyTypes lists every known AnomalyType.
var AnomalyTypes = []AnomalyType{
	AnomalyTimeDrift, AnomalyMissingTransaction, AnomalyChainBreak, AnomalySuspiciousAmount,
	AnomalyRapidTransactions, AnomalyUser, AnomalySystemTampering, AnomalyClockManipulation,
}

// ParseAnomalyType decodes an anomaly tag, failing with ErrDecode when unknown.
func ParseAnomalyType(s string) (AnomalyType, error) {
	for _, t := range AnomalyTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown anomaly_type %q", ErrDecode, s)
}

// UnmarshalText makes JSON decoding strict.
func (t *AnomalyType) UnmarshalText(b []byte) error {
	v, err := ParseAnomalyType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Severity ranks an anomaly.
type Severity string

const (
	SevLow      Severity = "low"
	SevMedium   Severity = "medium"
	SevHigh     Severity = "high"
	SevCritical Severity = "critical"
)

// Severities lists every known Severity, lowest first.
var Severities = []Severity{SevLow, SevMedium, SevHigh, SevCritical}

// ParseSeverity decodes a severity tag, failing with ErrDecode when unknown.
func ParseSeverity(s string) (Severity, error) {
	for _, v := range Severities {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown severity %q", ErrDecode, s)
}

// UnmarshalText makes JSON decoding strict.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ─── Anomaly ────────────────────────────────────────────────────────────────

// Anomaly is a persisted integrity finding.
//
// The stored record is immutable. Resolved, ResolvedAt and ResolvedBy are a
// read model derived from the latest Resolution event for the anomaly.
type Anomaly struct {
	ID              string          `json:"id"`
	Type            AnomalyType     `json:"anomaly_type"`
	Severity        Severity        `json:"severity"`
	Description     string          `json:"description"`
	Timestamp       time.Time       `json:"timestamp"`
	Evidence        json.RawMessage `json:"evidence"`
	Recommendations []string        `json:"recommendations"`
	Resolved        bool            `json:"resolved"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy      string          `json:"resolved_by,omitempty"`
}

// Resolution is one append-only resolution event for an anomaly.
type Resolution struct {
	ID         string    `json:"id"`
	AnomalyID  string    `json:"anomaly_id"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// AnomalyFilter narrows an anomaly listing. A nil Resolved lists all.
type AnomalyFilter struct {
	Resolved *bool
	Limit    int
}

// DetectionRequest selects which detectors run and with which thresholds.
type DetectionRequest struct {
	SessionID                 string  `json:"session_id"`
	EnableChainValidation     bool    `json:"enable_chain_validation"`
	EnableTimeValidation      bool    `json:"enable_time_validation"`
	EnableAmountValidation    bool    `json:"enable_amount_validation"`
	MaxTimeDrift              int64   `json:"max_time_drift"`
	SuspiciousAmountThreshold float64 `json:"suspicious_amount_threshold"`
}

// DetectionRequestFromConfig builds a request for sessionID from the saved
// security configuration.
func DetectionRequestFromConfig(sessionID string, cfg SecurityConfig) DetectionRequest {
	return DetectionRequest{
		SessionID:                 sessionID,
		EnableChainValidation:     cfg.EnableChainValidation,
		EnableTimeValidation:      cfg.EnableTimeValidation,
		EnableAmountValidation:    cfg.EnableAnomalyDetection,
		MaxTimeDrift:              cfg.MaxTimeDrift,
		SuspiciousAmountThreshold: cfg.SuspiciousAmountThreshold,
	}
}
