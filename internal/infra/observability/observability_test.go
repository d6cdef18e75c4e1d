package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/possuite/auditguard/internal/domain"
)

func TestRecordAppend(t *testing.T) {
	before := testutil.ToFloat64(LedgerAppends.WithLabelValues("financial"))

	RecordAppend(domain.LedgerEntry{LogType: domain.LogFinancial, ChainIndex: 42})

	if got := testutil.ToFloat64(LedgerAppends.WithLabelValues("financial")); got != before+1 {
		t.Errorf("appends = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(LedgerChainLength); got != 42 {
		t.Errorf("chain length = %v, want 42", got)
	}
}

func TestRecordAnomalies(t *testing.T) {
	counter := AnomaliesDetected.WithLabelValues("chain_break", "critical")
	before := testutil.ToFloat64(counter)

	RecordAnomalies([]domain.Anomaly{
		{Type: domain.AnomalyChainBreak, Severity: domain.SevCritical},
		{Type: domain.AnomalyChainBreak, Severity: domain.SevCritical},
		{Type: domain.AnomalySuspiciousAmount, Severity: domain.SevMedium},
	})

	if got := testutil.ToFloat64(counter); got != before+2 {
		t.Errorf("chain_break/critical = %v, want %v", got, before+2)
	}
}

func TestMetricsRegistered(t *testing.T) {
	// Vec metrics only appear once a label set is used.
	MonitorRuns.WithLabelValues("ok")
	DetectionRuns.WithLabelValues("api")
	ReportsGenerated.WithLabelValues("FR", "true")

	if n := testutil.CollectAndCount(MonitorRuns); n < 1 {
		t.Errorf("MonitorRuns series = %d, want >= 1", n)
	}
	if n := testutil.CollectAndCount(LedgerAppendFailures); n != 1 {
		t.Errorf("LedgerAppendFailures series = %d, want 1", n)
	}
	if n := testutil.CollectAndCount(AnomalyResolutions); n != 1 {
		t.Errorf("AnomalyResolutions series = %d, want 1", n)
	}
}
