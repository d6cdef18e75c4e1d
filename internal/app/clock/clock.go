// Package clock manages per-session application usage clocks.
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/possuite/auditguard/internal/domain"
)

// Service starts, advances and reads session clocks.
type Service struct {
	store  domain.ClockStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a clock service.
func New(store domain.ClockStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger.With("component", "clock"), now: time.Now}
}

// SetClock overrides the wall clock, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Start returns the session's clock, creating and saving it if absent.
// An existing clock is never reset.
func (s *Service) Start(ctx context.Context, sessionID string) (domain.AppClock, error) {
	if err := checkSession(sessionID); err != nil {
		return domain.AppClock{}, err
	}
	existing, err := s.store.GetAppClock(ctx, sessionID)
	if err != nil {
		return domain.AppClock{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	c := domain.NewAppClock(sessionID, s.now())
	if err := s.store.SaveAppClock(ctx, c); err != nil {
		return domain.AppClock{}, err
	}
	s.logger.Info("app clock started", "session", sessionID)
	return c, nil
}

// Heartbeat adds elapsed seconds of usage to the session's clock, creating
// the clock first when the session has none.
func (s *Service) Heartbeat(ctx context.Context, sessionID string, elapsed int64) (domain.AppClock, error) {
	if err := checkSession(sessionID); err != nil {
		return domain.AppClock{}, err
	}
	now := s.now()
	existing, err := s.store.GetAppClock(ctx, sessionID)
	if err != nil {
		return domain.AppClock{}, err
	}
	c := domain.NewAppClock(sessionID, now)
	if existing != nil {
		c = *existing
	}
	if err := c.IncrementUsageTime(elapsed, now); err != nil {
		return domain.AppClock{}, err
	}
	if err := s.store.SaveAppClock(ctx, c); err != nil {
		return domain.AppClock{}, err
	}
	s.logger.Debug("app clock heartbeat", "session", sessionID, "elapsed", elapsed, "total", c.TotalUsageTime)
	return c, nil
}

// Get returns the session's clock or ErrNotFound.
func (s *Service) Get(ctx context.Context, sessionID string) (domain.AppClock, error) {
	c, err := s.store.GetAppClock(ctx, sessionID)
	if err != nil {
		return domain.AppClock{}, err
	}
	if c == nil {
		return domain.AppClock{}, fmt.Errorf("%w: no app clock for session %q", domain.ErrNotFound, sessionID)
	}
	return *c, nil
}

func checkSession(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: session_id is required", domain.ErrValidation)
	}
	return nil
}
