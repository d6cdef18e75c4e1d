// Package api provides the HTTP server for the audit ledger.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/possuite/auditguard/internal/app/guard"
	"github.com/possuite/auditguard/internal/domain"
)

// Server is the audit ledger HTTP API server.
type Server struct {
	svc            *guard.Service
	logger         *slog.Logger
	metricsEnabled bool
}

// NewServer creates a new API server over svc.
func NewServer(svc *guard.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger.With("component", "api")}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/events", s.handleRecordEvent)
		r.Get("/entries", s.handleListEntries)
		r.Get("/entries/last", s.handleLastEntry)

		r.Get("/anomalies", s.handleListAnomalies)
		r.Post("/anomalies/detect", s.handleDetect)
		r.Post("/anomalies/{id}/resolve", s.handleResolve)
		r.Get("/anomalies/{id}/resolutions", s.handleResolutions)

		r.Post("/reports", s.handleReport)
		r.Get("/reports/history", s.handleReportHistory)

		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)

		r.Post("/clocks/{session}", s.handleStartClock)
		r.Post("/clocks/{session}/tick", s.handleTickClock)
		r.Get("/clocks/{session}", s.handleGetClock)

		r.Get("/stats", s.handleStats)
		r.Get("/verify", s.handleVerify)
		r.Get("/export", s.handleExport)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var f domain.EntryFields
	if err := decodeBody(r, &f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := s.svc.RecordEvent(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// GET /api/entries?limit=&log_type=&category=&table_id=&product_id=&user_id=&from=&to=&min_amount=&max_amount=
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	f, err := parseEntryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.svc.QueryEntries(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleLastEntry(w http.ResponseWriter, r *http.Request) {
	last, err := s.svc.LastEntry(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if last == nil {
		writeError(w, http.StatusNotFound, "ledger is empty")
		return
	}
	writeJSON(w, http.StatusOK, last)
}

// ─── Anomalies ──────────────────────────────────────────────────────────────

func (s *Server) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var resolved *bool
	if v := q.Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid resolved %q", v))
			return
		}
		resolved = &b
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	anomalies, err := s.svc.ListAnomalies(r.Context(), resolved, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if anomalies == nil {
		anomalies = []domain.Anomaly{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

// detectRequest runs with the saved thresholds unless Request overrides them.
type detectRequest struct {
	SessionID string                   `json:"session_id"`
	Request   *domain.DetectionRequest `json:"request,omitempty"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var (
		found []domain.Anomaly
		err   error
	)
	if req.Request != nil {
		if req.Request.SessionID == "" {
			req.Request.SessionID = req.SessionID
		}
		found, err = s.svc.Detect(r.Context(), *req.Request, "api")
	} else {
		found, err = s.svc.DetectAnomalies(r.Context(), req.SessionID, "api")
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if found == nil {
		found = []domain.Anomaly{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": found,
		"count":     len(found),
	})
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := s.svc.ResolveAnomaly(r.Context(), chi.URLParam(r, "id"), req.ResolvedBy)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleResolutions(w http.ResponseWriter, r *http.Request) {
	trail, err := s.svc.Resolutions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if trail == nil {
		trail = []domain.Resolution{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"resolutions": trail})
}

// ─── Reports ────────────────────────────────────────────────────────────────

type reportRequest struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Country string `json:"country,omitempty"`
}

// POST /api/reports generates and stores a new report.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.svc.GetReport(r.Context(), req.Start, req.End, req.Country)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (s *Server) handleReportHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reports, err := s.svc.ListReports(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if reports == nil {
		reports = []domain.ComplianceReport{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}

// ─── Security Config ────────────────────────────────────────────────────────

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.SecurityConfig(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.SecurityConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.SaveSecurityConfig(r.Context(), cfg); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ─── Clocks ─────────────────────────────────────────────────────────────────

func (s *Server) handleStartClock(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.StartClock(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type tickRequest struct {
	Elapsed int64 `json:"elapsed"` // seconds
}

func (s *Server) handleTickClock(w http.ResponseWriter, r *http.Request) {
	var req tickRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.svc.TickClock(r.Context(), chi.URLParam(r, "session"), req.Elapsed)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetClock(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.GetClock(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ─── Stats / Verify / Export ────────────────────────────────────────────────

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Verify(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	switch format {
	case "", guard.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case guard.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="ledger.csv"`)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown export format %q", format))
		return
	}
	if err := s.svc.Export(r.Context(), w, format); err != nil {
		// Headers may already be out; log rather than write a second body.
		s.logger.Error("export failed", "format", format, "error", err)
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func parseEntryFilter(r *http.Request) (domain.EntryFilter, error) {
	q := r.URL.Query()
	f := domain.EntryFilter{
		TableID:   q.Get("table_id"),
		ProductID: q.Get("product_id"),
		UserID:    q.Get("user_id"),
	}
	var err error
	if f.Limit, err = queryInt(q.Get("limit")); err != nil {
		return f, err
	}
	if v := q.Get("log_type"); v != "" {
		if f.LogType, err = domain.ParseLogType(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("category"); v != "" {
		if f.Category, err = domain.ParseCategory(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("from"); v != "" {
		if f.From, err = time.Parse(time.RFC3339, v); err != nil {
			return f, fmt.Errorf("invalid from %q", v)
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = time.Parse(time.RFC3339, v); err != nil {
			return f, fmt.Errorf("invalid to %q", v)
		}
	}
	if f.MinAmount, err = queryFloat(q.Get("min_amount")); err != nil {
		return f, err
	}
	if f.MaxAmount, err = queryFloat(q.Get("max_amount")); err != nil {
		return f, err
	}
	return f, nil
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}

func queryFloat(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", v)
	}
	return &f, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// writeServiceError maps domain errors onto HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrDecode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for the local POS front end.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
