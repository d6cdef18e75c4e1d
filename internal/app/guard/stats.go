package guard

import (
	"context"
	"time"

	"github.com/possuite/auditguard/internal/app/compliance"
	"github.com/possuite/auditguard/internal/app/ledger"
	"github.com/possuite/auditguard/internal/domain"
)

// VerifyResult is a full-ledger integrity check.
type VerifyResult struct {
	Entries         int     `json:"entries"`
	ChainIntegrity  bool    `json:"chain_integrity"`
	TimeConsistency bool    `json:"time_consistency"`
	BrokenLinks     []int64 `json:"broken_links,omitempty"`    // chain indexes whose previous_hash does not link
	HashMismatches  []int64 `json:"hash_mismatches,omitempty"` // chain indexes whose stored hash does not recompute
}

// OK reports whether no problem was found.
func (v VerifyResult) OK() bool {
	return v.ChainIntegrity && v.TimeConsistency && len(v.HashMismatches) == 0
}

// Verify checks the whole ledger: links, timestamps and recomputed hashes.
// It reads only and records nothing.
func (s *Service) Verify(ctx context.Context) (VerifyResult, error) {
	entries, err := s.ledger.All(ctx, 0)
	if err != nil {
		return VerifyResult{}, err
	}
	res := VerifyResult{
		Entries:         len(entries),
		ChainIntegrity:  compliance.VerifyChainIntegrity(entries),
		TimeConsistency: compliance.VerifyTimeConsistency(entries),
	}
	for i, e := range entries {
		if i > 0 && e.PreviousHash != entries[i-1].CurrentHash {
			res.BrokenLinks = append(res.BrokenLinks, e.ChainIndex)
		}
		if !ledger.VerifyEntry(e) {
			res.HashMismatches = append(res.HashMismatches, e.ChainIndex)
		}
	}
	return res, nil
}

// Stats summarizes the ledger's security state.
type Stats struct {
	TotalEntries        int        `json:"total_entries"`
	ChainLength         int64      `json:"chain_length"`
	TotalAmount         float64    `json:"total_amount"`
	TotalAnomalies      int64      `json:"total_anomalies"`
	UnresolvedAnomalies int64      `json:"unresolved_anomalies"`
	ChainIntegrity      bool       `json:"chain_integrity"`
	TimeConsistency     bool       `json:"time_consistency"`
	LastAnomalyAt       *time.Time `json:"last_anomaly_at,omitempty"`
	RetentionPeriodDays int64      `json:"retention_period_days"`
	RetentionEligible   int64      `json:"retention_eligible"` // reported only, never pruned
}

// Stats computes the current security statistics.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	cfg, err := s.db.GetSecurityConfig(ctx)
	if err != nil {
		return Stats{}, err
	}
	entries, err := s.ledger.All(ctx, 0)
	if err != nil {
		return Stats{}, err
	}
	total, unresolved, err := s.db.CountAnomalies(ctx)
	if err != nil {
		return Stats{}, err
	}
	cutoff := s.now().AddDate(0, 0, -int(cfg.RetentionPeriod))
	eligible, err := s.db.CountEntriesBefore(ctx, cutoff)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		TotalEntries:        len(entries),
		TotalAmount:         compliance.SumAmounts(entries).InexactFloat64(),
		TotalAnomalies:      total,
		UnresolvedAnomalies: unresolved,
		ChainIntegrity:      compliance.VerifyChainIntegrity(entries),
		TimeConsistency:     compliance.VerifyTimeConsistency(entries),
		RetentionPeriodDays: cfg.RetentionPeriod,
		RetentionEligible:   eligible,
	}
	if n := len(entries); n > 0 {
		st.ChainLength = entries[n-1].ChainIndex
	}

	latest, err := s.detector.List(ctx, domain.AnomalyFilter{Limit: 1})
	if err != nil {
		return Stats{}, err
	}
	if len(latest) == 1 {
		at := latest[0].Timestamp
		st.LastAnomalyAt = &at
	}
	return st, nil
}
