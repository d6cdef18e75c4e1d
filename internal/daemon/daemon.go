package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/possuite/auditguard/internal/api"
	"github.com/possuite/auditguard/internal/app/guard"
	"github.com/possuite/auditguard/internal/app/monitor"
	"github.com/possuite/auditguard/internal/infra/sqlite"
)

const shutdownTimeout = 10 * time.Second

// Run serves the API and, when enabled, the anomaly monitor until ctx is
// cancelled. It owns the store for its lifetime.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlite.Open(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	svc := guard.New(db, logger)
	srv := api.NewServer(svc, logger)
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	monitorDone := make(chan struct{})
	if cfg.Monitor.Enabled {
		interval, _ := cfg.MonitorInterval()
		sessionID := cfg.Session.ID
		if sessionID == "" {
			sessionID = guard.NewSessionID()
		}
		m := monitor.New(monitor.Config{Interval: interval, SessionID: sessionID}, svc.Detector(), db, nil, logger)
		go func() {
			defer close(monitorDone)
			m.Run(ctx)
		}()
	} else {
		close(monitorDone)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", httpSrv.Addr, "metrics", cfg.API.Metrics, "store", cfg.Storage.Dir)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			cancel()
			<-monitorDone
			return fmt.Errorf("api server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "error", err)
	}
	cancel()
	<-monitorDone
	return nil
}
