// Package guard is the entry point collaborators use to record and query
// the audit ledger. It wires the ledger, clocks, anomaly detector and
// compliance reporter over one SQLite store.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/possuite/auditguard/internal/app/clock"
	"github.com/possuite/auditguard/internal/app/compliance"
	"github.com/possuite/auditguard/internal/app/ledger"
	"github.com/possuite/auditguard/internal/domain"
	"github.com/possuite/auditguard/internal/infra/anomaly"
	"github.com/possuite/auditguard/internal/infra/observability"
	"github.com/possuite/auditguard/internal/infra/sqlite"
)

// Service is the audit ledger facade.
type Service struct {
	db       *sqlite.DB
	ledger   *ledger.Ledger
	clocks   *clock.Service
	detector *anomaly.Detector
	reporter *compliance.Reporter
	logger   *slog.Logger
	now      func() time.Time
}

// New wires every component over db.
func New(db *sqlite.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		ledger:   ledger.New(db, db, logger),
		clocks:   clock.New(db, logger),
		detector: anomaly.NewDetector(db, db, db, logger),
		reporter: compliance.New(db, db, db, db, logger),
		logger:   logger.With("component", "guard"),
		now:      time.Now,
	}
}

// SetClock overrides the wall clock of every component, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.ledger.SetClock(now)
	s.clocks.SetClock(now)
	s.detector.SetClock(now)
	s.reporter.SetClock(now)
}

// Detector exposes the anomaly detector, for the background monitor.
func (s *Service) Detector() *anomaly.Detector { return s.detector }

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return fmt.Sprintf("session-%d-%s", time.Now().UnixMilli(), strings.SplitN(uuid.NewString(), "-", 2)[0])
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// RecordEvent appends one audit event to the ledger.
func (s *Service) RecordEvent(ctx context.Context, f domain.EntryFields) (domain.LedgerEntry, error) {
	return s.ledger.Append(ctx, f)
}

// ListEntries returns entries ascending by chain index; limit <= 0 means all.
func (s *Service) ListEntries(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	return s.ledger.All(ctx, limit)
}

// QueryEntries returns entries matching f.
func (s *Service) QueryEntries(ctx context.Context, f domain.EntryFilter) ([]domain.LedgerEntry, error) {
	return s.ledger.Query(ctx, f)
}

// LastEntry returns the chain tip, or nil when the ledger is empty.
func (s *Service) LastEntry(ctx context.Context) (*domain.LedgerEntry, error) {
	return s.ledger.Last(ctx)
}

// ─── Clocks ─────────────────────────────────────────────────────────────────

// StartClock starts (or returns) the session's usage clock.
func (s *Service) StartClock(ctx context.Context, sessionID string) (domain.AppClock, error) {
	return s.clocks.Start(ctx, sessionID)
}

// TickClock adds elapsed seconds to the session's usage clock.
func (s *Service) TickClock(ctx context.Context, sessionID string, elapsed int64) (domain.AppClock, error) {
	return s.clocks.Heartbeat(ctx, sessionID, elapsed)
}

// GetClock returns the session's usage clock.
func (s *Service) GetClock(ctx context.Context, sessionID string) (domain.AppClock, error) {
	return s.clocks.Get(ctx, sessionID)
}

// ─── Anomalies ──────────────────────────────────────────────────────────────

// ListAnomalies returns anomalies newest first. A nil resolved lists all.
func (s *Service) ListAnomalies(ctx context.Context, resolved *bool, limit int) ([]domain.Anomaly, error) {
	return s.detector.List(ctx, domain.AnomalyFilter{Resolved: resolved, Limit: limit})
}

// DetectAnomalies runs detection with thresholds from the saved config.
// trigger labels the run in metrics (api, cli, monitor).
func (s *Service) DetectAnomalies(ctx context.Context, sessionID, trigger string) ([]domain.Anomaly, error) {
	cfg, err := s.db.GetSecurityConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s.Detect(ctx, domain.DetectionRequestFromConfig(sessionID, cfg), trigger)
}

// Detect runs detection with an explicit request.
func (s *Service) Detect(ctx context.Context, req domain.DetectionRequest, trigger string) ([]domain.Anomaly, error) {
	observability.DetectionRuns.WithLabelValues(trigger).Inc()
	return s.detector.DetectAnomalies(ctx, req)
}

// ResolveAnomaly records a resolution event for id.
func (s *Service) ResolveAnomaly(ctx context.Context, id, resolvedBy string) (domain.Anomaly, error) {
	return s.detector.Resolve(ctx, id, resolvedBy)
}

// Resolutions returns the resolution trail for id.
func (s *Service) Resolutions(ctx context.Context, id string) ([]domain.Resolution, error) {
	return s.detector.Resolutions(ctx, id)
}

// ─── Reports ────────────────────────────────────────────────────────────────

// GetReport generates and persists a compliance report for the period.
func (s *Service) GetReport(ctx context.Context, periodStart, periodEnd, countryCode string) (domain.ComplianceReport, error) {
	return s.reporter.Generate(ctx, periodStart, periodEnd, countryCode)
}

// ListReports returns stored reports, newest first.
func (s *Service) ListReports(ctx context.Context, limit int) ([]domain.ComplianceReport, error) {
	return s.reporter.List(ctx, limit)
}

// ─── Security Config ────────────────────────────────────────────────────────

// SecurityConfig returns the saved configuration or the defaults.
func (s *Service) SecurityConfig(ctx context.Context) (domain.SecurityConfig, error) {
	return s.db.GetSecurityConfig(ctx)
}

// SaveSecurityConfig validates and saves cfg.
func (s *Service) SaveSecurityConfig(ctx context.Context, cfg domain.SecurityConfig) error {
	if err := s.db.SaveSecurityConfig(ctx, cfg); err != nil {
		return err
	}
	s.logger.Info("security config saved",
		"max_time_drift", cfg.MaxTimeDrift,
		"suspicious_amount_threshold", cfg.SuspiciousAmountThreshold,
		"compliance_country", cfg.ComplianceCountry,
	)
	return nil
}
