package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/possuite/auditguard/internal/domain"
)

func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--home", home}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, home string, args ...string) string {
	t.Helper()
	out, err := run(t, home, args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

func TestRecordAndEntries(t *testing.T) {
	home := t.TempDir()
	mustRun(t, home, "record", "coffee", "--amount", "2.5", "--session", "s-1", "--table-id", "t-4")
	mustRun(t, home, "record", "shift start", "--type", "system", "--category", "system", "--session", "s-1")

	out := mustRun(t, home, "--json", "entries")
	var entries []domain.LedgerEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("entries JSON: %v\n%s", err, out)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Amount == nil || *entries[0].Amount != 2.5 {
		t.Errorf("first amount = %v", entries[0].Amount)
	}
	if entries[1].Amount != nil {
		t.Error("amount should be absent when --amount is not given")
	}
	if entries[1].PreviousHash != entries[0].CurrentHash {
		t.Error("entries must be chained")
	}

	out = mustRun(t, home, "entries", "--table", "t-4")
	if !strings.Contains(out, "coffee") || strings.Contains(out, "shift start") {
		t.Errorf("filtered table output:\n%s", out)
	}
}

func TestRecord_Invalid(t *testing.T) {
	home := t.TempDir()
	if _, err := run(t, home, "record", "x", "--category", "gift", "--session", "s"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown category error = %v", err)
	}
	if _, err := run(t, home, "record", "x"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing session error = %v", err)
	}
}

func TestRecord_SessionFromConfig(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte("[session]\nid = \"till-9\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out := mustRun(t, home, "--json", "record", "tea", "--amount", "3")
	var e domain.LedgerEntry
	if err := json.Unmarshal([]byte(out), &e); err != nil {
		t.Fatal(err)
	}
	if e.SessionID != "till-9" {
		t.Errorf("SessionID = %q, want till-9", e.SessionID)
	}
}

func TestVerifyAndStats(t *testing.T) {
	home := t.TempDir()
	mustRun(t, home, "record", "a", "--amount", "1", "--session", "s")
	out := mustRun(t, home, "verify")
	if !strings.Contains(out, "Chain integrity:  OK") {
		t.Errorf("verify output:\n%s", out)
	}
	out = mustRun(t, home, "stats")
	if !strings.Contains(out, "Entries:              1") {
		t.Errorf("stats output:\n%s", out)
	}
}

func TestAnomaliesFlow(t *testing.T) {
	home := t.TempDir()
	mustRun(t, home, "record", "big", "--amount", "5000", "--session", "s")

	out := mustRun(t, home, "--json", "anomalies", "detect", "--session", "s")
	var found []domain.Anomaly
	if err := json.Unmarshal([]byte(out), &found); err != nil {
		t.Fatalf("detect JSON: %v\n%s", err, out)
	}
	if len(found) != 1 || found[0].Type != domain.AnomalySuspiciousAmount {
		t.Fatalf("found = %+v", found)
	}

	if _, err := run(t, home, "anomalies", "resolve", found[0].ID); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("resolve without --by error = %v", err)
	}
	mustRun(t, home, "anomalies", "resolve", found[0].ID, "--by", "manager")

	out = mustRun(t, home, "anomalies", "list", "--resolved", "false")
	if !strings.Contains(out, "No anomalies.") {
		t.Errorf("unresolved list:\n%s", out)
	}
	out = mustRun(t, home, "anomalies", "trail", found[0].ID)
	if !strings.Contains(out, "manager") {
		t.Errorf("trail:\n%s", out)
	}
}

func TestReport(t *testing.T) {
	home := t.TempDir()
	mustRun(t, home, "record", "a", "--amount", "1.5", "--session", "s")

	out := mustRun(t, home, "--json", "report", "generate", "--country", "DE")
	var rep domain.ComplianceReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("report JSON: %v\n%s", err, out)
	}
	if rep.CountryCode != "DE" || rep.TotalTransactions != 1 || rep.TotalAmount != 1.5 {
		t.Errorf("report = %+v", rep)
	}
	out = mustRun(t, home, "report", "list")
	if !strings.Contains(out, rep.ID) {
		t.Errorf("report list:\n%s", out)
	}
}

func TestConfigSet(t *testing.T) {
	home := t.TempDir()
	mustRun(t, home, "config", "set", "max_time_drift=120", "compliance_country=de")

	out := mustRun(t, home, "config", "show")
	var cfg domain.SecurityConfig
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.MaxTimeDrift != 120 || cfg.ComplianceCountry != "DE" {
		t.Errorf("config = %+v", cfg)
	}

	for _, arg := range []string{"nope=1", "max_time_drift=soon", "max_time_drift", "retention_period=0"} {
		if _, err := run(t, home, "config", "set", arg); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("set %q error = %v, want ErrValidation", arg, err)
		}
	}
}

func TestClockCommands(t *testing.T) {
	home := t.TempDir()
	mustRun(t, home, "clock", "start", "s-1")
	mustRun(t, home, "clock", "tick", "s-1", "120")
	out := mustRun(t, home, "clock", "show", "s-1")
	if !strings.Contains(out, "Usage:      2m0s") {
		t.Errorf("clock show:\n%s", out)
	}
	if _, err := run(t, home, "clock", "show", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing clock error = %v", err)
	}
}

func TestExportToFile(t *testing.T) {
	home := t.TempDir()
	mustRun(t, home, "record", "a", "--amount", "1", "--session", "s")
	path := filepath.Join(t.TempDir(), "ledger.csv")
	mustRun(t, home, "export", "--format", "csv", "--output", path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("csv lines = %d, want 2", lines)
	}
	if _, err := run(t, home, "export", "--format", "xml"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("xml export error = %v", err)
	}
}
