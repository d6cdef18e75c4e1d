package domain

import "context"

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// TipFunc builds the next entry given the current chain tip (nil when empty).
type TipFunc func(tip *LedgerEntry) (LedgerEntry, error)

// LedgerStore is the write-once, read-many entry store.
type LedgerStore interface {
	// AppendEntry reads the tip and inserts build(tip) as one atomic unit.
	AppendEntry(ctx context.Context, build TipFunc) (LedgerEntry, error)

	// ListEntries returns entries ascending by chain index; limit <= 0 means all.
	ListEntries(ctx context.Context, limit int) ([]LedgerEntry, error)

	// LastEntry returns the chain tip, or nil when the ledger is empty.
	LastEntry(ctx context.Context) (*LedgerEntry, error)

	// QueryEntries returns entries matching f, ascending by chain index.
	QueryEntries(ctx context.Context, f EntryFilter) ([]LedgerEntry, error)
}

// ClockStore persists one AppClock per session.
type ClockStore interface {
	SaveAppClock(ctx context.Context, c AppClock) error
	GetAppClock(ctx context.Context, sessionID string) (*AppClock, error)
}

// AnomalyStore persists immutable anomalies and their resolution events.
type AnomalyStore interface {
	InsertAnomalies(ctx context.Context, anomalies []Anomaly) error
	GetAnomaly(ctx context.Context, id string) (*Anomaly, error)
	ListAnomalies(ctx context.Context, f AnomalyFilter) ([]Anomaly, error)
	AppendResolution(ctx context.Context, r Resolution) error
	ListResolutions(ctx context.Context, anomalyID string) ([]Resolution, error)
}

// ReportStore persists generated compliance reports.
type ReportStore interface {
	InsertReport(ctx context.Context, r ComplianceReport) error
	ListReports(ctx context.Context, limit int) ([]ComplianceReport, error)
}

// ConfigStore persists the SecurityConfig singleton.
type ConfigStore interface {
	// GetSecurityConfig returns the saved config, or DefaultSecurityConfig.
	GetSecurityConfig(ctx context.Context) (SecurityConfig, error)
	SaveSecurityConfig(ctx context.Context, c SecurityConfig) error
}
