package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/possuite/auditguard/internal/domain"
	"github.com/possuite/auditguard/internal/infra/sqlite"
)

func newTestService(t *testing.T, now time.Time) *Service {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := New(db, nil)
	s.SetClock(func() time.Time { return now })
	return s
}

func TestStart_Idempotent(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(t, start)
	ctx := context.Background()

	c1, err := s.Start(ctx, "s-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if c1.StartTime != start.Unix() {
		t.Errorf("StartTime = %d, want %d", c1.StartTime, start.Unix())
	}

	s.SetClock(func() time.Time { return start.Add(time.Hour) })
	c2, err := s.Start(ctx, "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if c2.StartTime != c1.StartTime || c2.ClockSignature != c1.ClockSignature {
		t.Error("second Start reset the clock")
	}
}

func TestHeartbeat_Accumulates(t *testing.T) {
	s := newTestService(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := s.Heartbeat(ctx, "s-1", 30); err != nil {
		t.Fatalf("Heartbeat() error: %v", err)
	}
	c, err := s.Heartbeat(ctx, "s-1", 45)
	if err != nil {
		t.Fatal(err)
	}
	if c.TotalUsageTime != 75 {
		t.Errorf("TotalUsageTime = %d, want 75", c.TotalUsageTime)
	}

	got, err := s.Get(ctx, "s-1")
	if err != nil || got.TotalUsageTime != 75 {
		t.Errorf("Get() = %+v, %v", got, err)
	}
}

func TestHeartbeat_RejectsNegative(t *testing.T) {
	s := newTestService(t, time.Now())
	if _, err := s.Heartbeat(context.Background(), "s-1", -5); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestService(t, time.Now())
	if _, err := s.Get(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStart_BlankSession(t *testing.T) {
	s := newTestService(t, time.Now())
	if _, err := s.Start(context.Background(), " "); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}
