// Package monitor runs anomaly detection periodically in the background.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/possuite/auditguard/internal/domain"
	"github.com/possuite/auditguard/internal/infra/observability"
)

// Detector is the subset of the anomaly detector the monitor drives.
type Detector interface {
	DetectAnomalies(ctx context.Context, req domain.DetectionRequest) ([]domain.Anomaly, error)
}

// AlertFunc receives the findings of a tick that produced any.
type AlertFunc func(ctx context.Context, anomalies []domain.Anomaly)

// Config controls the monitor loop.
type Config struct {
	Interval  time.Duration // default 30s
	SessionID string        // session whose clock is checked for drift
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second}
}

// Monitor re-runs detection on a fixed interval while real-time monitoring
// is enabled in the saved security configuration.
type Monitor struct {
	config   Config
	detector Detector
	settings domain.ConfigStore
	alert    AlertFunc
	logger   *slog.Logger

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// New creates a monitor. A nil alert logs findings at warn level.
func New(cfg Config, detector Detector, settings domain.ConfigStore, alert AlertFunc, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		config:   cfg,
		detector: detector,
		settings: settings,
		alert:    alert,
		logger:   logger.With("component", "monitor"),
	}
	if m.alert == nil {
		m.alert = m.logAlert
	}
	return m
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", "interval", m.config.Interval.String())
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one detection pass and returns its findings. Errors are logged
// and recorded for LastRun, not returned; the loop keeps going.
func (m *Monitor) Tick(ctx context.Context) []domain.Anomaly {
	cfg, err := m.settings.GetSecurityConfig(ctx)
	if err != nil {
		m.record(err)
		observability.MonitorRuns.WithLabelValues("error").Inc()
		m.logger.Error("load security config failed", "error", err)
		return nil
	}
	if !cfg.EnableRealTimeMonitoring || !cfg.EnableAnomalyDetection {
		observability.MonitorRuns.WithLabelValues("skipped").Inc()
		return nil
	}

	observability.DetectionRuns.WithLabelValues("monitor").Inc()
	found, err := m.detector.DetectAnomalies(ctx, domain.DetectionRequestFromConfig(m.config.SessionID, cfg))
	m.record(err)
	if err != nil {
		observability.MonitorRuns.WithLabelValues("error").Inc()
		m.logger.Error("detection failed", "error", err)
		return nil
	}
	if len(found) == 0 {
		observability.MonitorRuns.WithLabelValues("ok").Inc()
		return nil
	}
	observability.MonitorRuns.WithLabelValues("alert").Inc()
	m.alert(ctx, found)
	return found
}

// LastRun returns when the last detection pass finished and its error.
func (m *Monitor) LastRun() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun, m.lastErr
}

func (m *Monitor) record(err error) {
	m.mu.Lock()
	m.lastRun = time.Now()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Monitor) logAlert(_ context.Context, anomalies []domain.Anomaly) {
	for _, a := range anomalies {
		m.logger.Warn("anomaly detected",
			"id", a.ID,
			"type", a.Type,
			"severity", a.Severity,
			"description", a.Description,
		)
	}
}
