package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/possuite/auditguard/internal/app/ledger"
	"github.com/possuite/auditguard/internal/domain"
	"github.com/possuite/auditguard/internal/infra/sqlite"
)

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db       *sqlite.DB
	ledger   *ledger.Ledger
	reporter *Reporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	r := New(db, db, db, db, nil)
	r.SetClock(func() time.Time { return base.Add(48 * time.Hour) })
	return &fixture{db: db, ledger: ledger.New(db, db, nil), reporter: r}
}

// appendAt appends a sale stamped at ts.
func (f *fixture) appendAt(t *testing.T, ts time.Time, amount *float64) domain.LedgerEntry {
	t.Helper()
	f.ledger.SetClock(func() time.Time { return ts })
	e, err := f.ledger.Append(context.Background(), domain.EntryFields{
		LogType:   domain.LogFinancial,
		Category:  domain.CategorySale,
		Title:     "sale",
		Amount:    amount,
		SessionID: "s-1",
	})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	return e
}

func amt(f float64) *float64 { return &f }

func TestGenerate_EmptyPeriod(t *testing.T) {
	f := newFixture(t)
	ts := base.Format(time.RFC3339)

	rep, err := f.reporter.Generate(context.Background(), ts, ts, "FR")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if rep.TotalTransactions != 0 || rep.TotalAmount != 0.0 {
		t.Errorf("totals = %d, %f, want 0, 0", rep.TotalTransactions, rep.TotalAmount)
	}
	if !rep.ChainIntegrity || !rep.TimeConsistency {
		t.Errorf("integrity = %v, consistency = %v, want true, true", rep.ChainIntegrity, rep.TimeConsistency)
	}
	if rep.ReportSignature != Signature(rep) {
		t.Error("signature does not match summary fields")
	}

	stored, err := f.reporter.List(context.Background(), 0)
	if err != nil || len(stored) != 1 || stored[0].ID != rep.ID {
		t.Errorf("List() = %+v, %v", stored, err)
	}
}

func TestGenerate_PeriodBoundsInclusive(t *testing.T) {
	f := newFixture(t)
	f.appendAt(t, base.Add(-time.Second), amt(100)) // before
	f.appendAt(t, base, amt(0.1))                   // on start
	f.appendAt(t, base.Add(time.Hour), nil)         // no amount
	f.appendAt(t, base.Add(2*time.Hour), amt(0.2))  // on end
	f.appendAt(t, base.Add(3*time.Hour), amt(100))  // after

	rep, err := f.reporter.Generate(context.Background(),
		base.Format(time.RFC3339), base.Add(2*time.Hour).Format(time.RFC3339), "DE")
	if err != nil {
		t.Fatal(err)
	}
	if rep.TotalTransactions != 3 {
		t.Errorf("TotalTransactions = %d, want 3", rep.TotalTransactions)
	}
	if rep.TotalAmount != 0.3 {
		t.Errorf("TotalAmount = %v, want exactly 0.3", rep.TotalAmount)
	}
	if !rep.ChainIntegrity {
		t.Error("chain inside the period should be intact")
	}
	if rep.CountryCode != "DE" {
		t.Errorf("CountryCode = %q, want DE", rep.CountryCode)
	}
}

func TestGenerate_DefaultsCountryFromConfig(t *testing.T) {
	f := newFixture(t)
	ts := base.Format(time.RFC3339)
	rep, err := f.reporter.Generate(context.Background(), ts, ts, "")
	if err != nil {
		t.Fatal(err)
	}
	if rep.CountryCode != "FR" {
		t.Errorf("CountryCode = %q, want FR", rep.CountryCode)
	}
}

func TestGenerate_CountsAnomaliesInPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := domain.Anomaly{ID: "in", Type: domain.AnomalyTimeDrift, Severity: domain.SevHigh,
		Timestamp: base.Add(time.Minute), Evidence: []byte(`{}`), Recommendations: []string{}}
	out := in
	out.ID, out.Timestamp = "out", base.Add(-time.Minute)
	if err := f.db.InsertAnomalies(ctx, []domain.Anomaly{in, out}); err != nil {
		t.Fatal(err)
	}

	rep, err := f.reporter.Generate(ctx, base.Format(time.RFC3339), base.Add(time.Hour).Format(time.RFC3339), "FR")
	if err != nil {
		t.Fatal(err)
	}
	if rep.AnomaliesCount != 1 {
		t.Errorf("AnomaliesCount = %d, want 1", rep.AnomaliesCount)
	}
}

func TestGenerate_Validation(t *testing.T) {
	f := newFixture(t)
	ok := base.Format(time.RFC3339)
	tests := []struct {
		name, start, end, country string
	}{
		{"bad start", "yesterday", ok, "FR"},
		{"bad end", ok, "2025-13-01", "FR"},
		{"inverted", base.Add(time.Hour).Format(time.RFC3339), ok, "FR"},
		{"bad country", ok, ok, "fra"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reporter.Generate(context.Background(), tt.start, tt.end, tt.country)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
	if list, _ := f.reporter.List(context.Background(), 0); len(list) != 0 {
		t.Error("rejected requests must not persist a report")
	}
}

// ─── Checks ─────────────────────────────────────────────────────────────────

func TestVerifyChainIntegrity(t *testing.T) {
	entries := []domain.LedgerEntry{
		{CurrentHash: "a"},
		{PreviousHash: "a", CurrentHash: "b"},
		{PreviousHash: "b", CurrentHash: "c"},
	}
	if !VerifyChainIntegrity(entries) {
		t.Error("linked slice should verify")
	}
	entries[1].PreviousHash = "x"
	if VerifyChainIntegrity(entries) {
		t.Error("tampered slice should fail")
	}
	if !VerifyChainIntegrity(nil) {
		t.Error("empty slice should verify")
	}
}

func TestVerifyTimeConsistency(t *testing.T) {
	entries := []domain.LedgerEntry{
		{CreatedAt: base},
		{CreatedAt: base},
		{CreatedAt: base.Add(time.Second)},
	}
	if !VerifyTimeConsistency(entries) {
		t.Error("non-decreasing timestamps should be consistent")
	}
	entries[2].CreatedAt = base.Add(-time.Second)
	if VerifyTimeConsistency(entries) {
		t.Error("backwards timestamp should be inconsistent")
	}
}

func TestSignature_ChangesWithFields(t *testing.T) {
	r := domain.ComplianceReport{PeriodStart: base, PeriodEnd: base, CountryCode: "FR"}
	s1 := Signature(r)
	r.TotalTransactions = 1
	if Signature(r) == s1 {
		t.Error("signature should depend on total_transactions")
	}
}
