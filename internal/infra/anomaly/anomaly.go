// Package anomaly detects integrity anomalies in the audit ledger.
//
// The detectors are plain functions over a ledger snapshot and an AppClock;
// findings are returned as data, never as errors. Detector wires them to the
// stores and persists every finding it produces.
package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/possuite/auditguard/internal/domain"
	"github.com/possuite/auditguard/internal/infra/observability"
)

// Fixed remediation guidance per finding type.
var (
	ChainBreakRecommendations = []string{
		"Verify database integrity",
		"Contact the system administrator",
		"Inspect system logs",
	}
	TimeDriftRecommendations = []string{
		"Check clock synchronization",
		"Restart the application if necessary",
		"Contact technical support",
	}
	SuspiciousAmountRecommendations = []string{
		"Review the transaction manually",
		"Contact the customer if necessary",
		"Document the justification",
	}
)

// ─── Evidence Payloads ──────────────────────────────────────────────────────

// ChainBreakEvidence is the evidence attached to a chain_break anomaly.
type ChainBreakEvidence struct {
	CurrentIndex         int64  `json:"current_index"`
	CurrentHash          string `json:"current_hash"`
	ExpectedPreviousHash string `json:"expected_previous_hash"`
	ActualPreviousHash   string `json:"actual_previous_hash"`
}

// TimeDriftEvidence is the evidence attached to a time_drift anomaly.
type TimeDriftEvidence struct {
	SessionID    string `json:"session_id"`
	AppClockTime int64  `json:"app_clock_time"`
	SystemTime   int64  `json:"system_time"`
	MaxDrift     int64  `json:"max_drift"`
}

// AmountEvidence is the evidence attached to a suspicious_amount anomaly.
type AmountEvidence struct {
	Amount        float64   `json:"amount"`
	Threshold     float64   `json:"threshold"`
	TransactionID string    `json:"transaction_id"`
	ChainIndex    int64     `json:"chain_index"`
	Timestamp     time.Time `json:"timestamp"`
}

// ─── Pure Detectors ─────────────────────────────────────────────────────────

// DetectChainAnomalies reports one chain_break for every entry, after the
// first, whose PreviousHash differs from its predecessor's CurrentHash.
// entries must be in ascending chain index order.
func DetectChainAnomalies(entries []domain.LedgerEntry, now time.Time) ([]domain.Anomaly, error) {
	var found []domain.Anomaly
	for i := 1; i < len(entries); i++ {
		cur, prev := entries[i], entries[i-1]
		if cur.PreviousHash == prev.CurrentHash {
			continue
		}
		a, err := newAnomaly(domain.AnomalyChainBreak, domain.SevCritical,
			fmt.Sprintf("Chain break detected at index %d", cur.ChainIndex),
			ChainBreakEvidence{
				CurrentIndex:         cur.ChainIndex,
				CurrentHash:          cur.CurrentHash,
				ExpectedPreviousHash: prev.CurrentHash,
				ActualPreviousHash:   cur.PreviousHash,
			}, ChainBreakRecommendations, now)
		if err != nil {
			return nil, err
		}
		found = append(found, a)
	}
	return found, nil
}

// DetectTimeAnomalies reports a time_drift when clock fails the consistency
// check at now. A nil clock (session never started) yields nothing.
func DetectTimeAnomalies(clock *domain.AppClock, maxDrift int64, now time.Time) ([]domain.Anomaly, error) {
	if clock == nil || clock.ValidateTimeConsistency(maxDrift, now) {
		return nil, nil
	}
	a, err := newAnomaly(domain.AnomalyTimeDrift, domain.SevHigh,
		"Time drift detected in the application clock",
		TimeDriftEvidence{
			SessionID:    clock.SessionID,
			AppClockTime: clock.UsageTime(now),
			SystemTime:   now.Unix(),
			MaxDrift:     maxDrift,
		}, TimeDriftRecommendations, now)
	if err != nil {
		return nil, err
	}
	return []domain.Anomaly{a}, nil
}

// DetectAmountAnomalies reports a suspicious_amount for every entry whose
// absolute amount exceeds threshold. Entries without an amount are skipped.
func DetectAmountAnomalies(entries []domain.LedgerEntry, threshold float64, now time.Time) ([]domain.Anomaly, error) {
	var found []domain.Anomaly
	for _, e := range entries {
		if e.Amount == nil || math.Abs(*e.Amount) <= threshold {
			continue
		}
		a, err := newAnomaly(domain.AnomalySuspiciousAmount, domain.SevMedium,
			"Suspicious amount detected: "+strconv.FormatFloat(*e.Amount, 'f', 2, 64),
			AmountEvidence{
				Amount:        *e.Amount,
				Threshold:     threshold,
				TransactionID: e.ID,
				ChainIndex:    e.ChainIndex,
				Timestamp:     e.CreatedAt,
			}, SuspiciousAmountRecommendations, now)
		if err != nil {
			return nil, err
		}
		found = append(found, a)
	}
	return found, nil
}

func newAnomaly(typ domain.AnomalyType, sev domain.Severity, desc string, evidence any, recs []string, now time.Time) (domain.Anomaly, error) {
	raw, err := json.Marshal(evidence)
	if err != nil {
		return domain.Anomaly{}, fmt.Errorf("%w: %s evidence: %v", domain.ErrSerialization, typ, err)
	}
	return domain.Anomaly{
		ID:              uuid.NewString(),
		Type:            typ,
		Severity:        sev,
		Description:     desc,
		Timestamp:       now.UTC(),
		Evidence:        raw,
		Recommendations: append([]string(nil), recs...),
	}, nil
}

// ─── Detector ───────────────────────────────────────────────────────────────

// Detector runs the detectors against the stores and persists the findings.
type Detector struct {
	ledger    domain.LedgerStore
	clocks    domain.ClockStore
	anomalies domain.AnomalyStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewDetector creates a detector over the given stores.
func NewDetector(ledger domain.LedgerStore, clocks domain.ClockStore, anomalies domain.AnomalyStore, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		ledger:    ledger,
		clocks:    clocks,
		anomalies: anomalies,
		logger:    logger.With("component", "anomaly"),
		now:       time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (d *Detector) SetClock(now func() time.Time) { d.now = now }

// DetectTimeAnomalies looks up the session's clock and checks its drift.
func (d *Detector) DetectTimeAnomalies(ctx context.Context, sessionID string, maxDrift int64) ([]domain.Anomaly, error) {
	clock, err := d.clocks.GetAppClock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return DetectTimeAnomalies(clock, maxDrift, d.now())
}

// DetectAnomalies runs every detector enabled in req, persists all findings
// in one batch and returns them. Only storage and serialization failures are
// returned as errors.
func (d *Detector) DetectAnomalies(ctx context.Context, req domain.DetectionRequest) ([]domain.Anomaly, error) {
	now := d.now()

	var entries []domain.LedgerEntry
	if req.EnableChainValidation || req.EnableAmountValidation {
		var err error
		if entries, err = d.ledger.ListEntries(ctx, 0); err != nil {
			return nil, err
		}
	}

	var found []domain.Anomaly
	if req.EnableChainValidation {
		a, err := DetectChainAnomalies(entries, now)
		if err != nil {
			return nil, err
		}
		found = append(found, a...)
	}
	if req.EnableTimeValidation {
		a, err := d.DetectTimeAnomalies(ctx, req.SessionID, req.MaxTimeDrift)
		if err != nil {
			return nil, err
		}
		found = append(found, a...)
	}
	if req.EnableAmountValidation {
		a, err := DetectAmountAnomalies(entries, req.SuspiciousAmountThreshold, now)
		if err != nil {
			return nil, err
		}
		found = append(found, a...)
	}

	if err := d.anomalies.InsertAnomalies(ctx, found); err != nil {
		d.logger.Error("persist anomalies failed", "count", len(found), "error", err)
		return nil, err
	}
	observability.RecordAnomalies(found)
	d.logger.Info("anomaly detection complete",
		"session", req.SessionID,
		"entries", len(entries),
		"anomalies", len(found),
	)
	return found, nil
}

// Resolve appends a resolution event for id and returns the anomaly with its
// updated read model. Resolving twice records a second event; the anomaly's
// identity, type and evidence are never touched.
func (d *Detector) Resolve(ctx context.Context, id, resolvedBy string) (domain.Anomaly, error) {
	if resolvedBy == "" {
		return domain.Anomaly{}, fmt.Errorf("%w: resolved_by is required", domain.ErrValidation)
	}
	r := domain.Resolution{
		ID:         uuid.NewString(),
		AnomalyID:  id,
		ResolvedBy: resolvedBy,
		ResolvedAt: d.now().UTC(),
	}
	if err := d.anomalies.AppendResolution(ctx, r); err != nil {
		return domain.Anomaly{}, err
	}
	observability.AnomalyResolutions.Inc()
	d.logger.Info("anomaly resolved", "id", id, "resolved_by", resolvedBy)

	a, err := d.anomalies.GetAnomaly(ctx, id)
	if err != nil {
		return domain.Anomaly{}, err
	}
	return *a, nil
}

// Resolutions returns the resolution trail for id, oldest first.
func (d *Detector) Resolutions(ctx context.Context, id string) ([]domain.Resolution, error) {
	if _, err := d.anomalies.GetAnomaly(ctx, id); err != nil {
		return nil, err
	}
	return d.anomalies.ListResolutions(ctx, id)
}

// List returns persisted anomalies, newest first.
func (d *Detector) List(ctx context.Context, f domain.AnomalyFilter) ([]domain.Anomaly, error) {
	return d.anomalies.ListAnomalies(ctx, f)
}
