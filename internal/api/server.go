package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/translation-progress/internal/aggregate"
	"github.com/JakeFAU/translation-progress/internal/archive"
	"github.com/JakeFAU/translation-progress/internal/config"
	"github.com/JakeFAU/translation-progress/internal/metrics"
	"github.com/JakeFAU/translation-progress/internal/middleware"
	"github.com/JakeFAU/translation-progress/internal/pipeline"
	"github.com/JakeFAU/translation-progress/internal/publishing"
	"github.com/JakeFAU/translation-progress/internal/store"
)

// Server wires HTTP handlers to the roller, orchestrator, and stores.
type Server struct {
	router   chi.Router
	roller   *aggregate.Roller
	orch     *publishing.Orchestrator
	items    store.ItemRepository
	archiver *archive.Archiver
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	roller *aggregate.Roller,
	orch *publishing.Orchestrator,
	items store.ItemRepository,
	attempts store.AttemptRepository,
	archiver *archive.Archiver,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		roller:   roller,
		orch:     orch,
		items:    items,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger,
	}
	attemptHandler := NewAttemptHandler(attempts, logger)
	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(middleware.Metrics)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tracks/{track_id}", func(r chi.Router) {
			r.Get("/groups", s.listGroups)
			r.Post("/groups/publish", s.publishGroup)
			r.Get("/stats/monthly", s.monthlyStats)
			r.Post("/reports/archive", s.archiveReport)
			r.Route("/attempts", func(r chi.Router) {
				r.Get("/", attemptHandler.ListAttempts)
				r.Get("/{attempt_id}", attemptHandler.GetAttempt)
				r.Post("/{attempt_id}/resolve", s.resolveAttempt)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// A cheap read proves the item store is reachable.
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.items.ListItems(ctx, store.Selector{TrackID: -1}); err != nil {
		writeError(w, http.StatusServiceUnavailable, "item store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type groupDTO struct {
	GroupKey       []string                    `json:"group_key"`
	TrackID        int                         `json:"track_id"`
	TotalWordCount int                         `json:"total_word_count"`
	Percentages    map[pipeline.Status]float64 `json:"percentages"`
	LastInsertion  time.Time                   `json:"last_insertion"`
	LastAnnotation *time.Time                  `json:"last_annotation,omitempty"`
	ResolvedStatus string                      `json:"resolved_status"`
	PublishAction  string                      `json:"publish_action,omitempty"`
	Items          int                         `json:"items"`
}

func toGroupDTO(g pipeline.Group) groupDTO {
	return groupDTO{
		GroupKey:       []string(g.Key),
		TrackID:        g.TrackID,
		TotalWordCount: g.TotalWordCount,
		Percentages:    g.Percentages,
		LastInsertion:  g.LastInsertion,
		LastAnnotation: g.LastAnnotation,
		ResolvedStatus: string(g.ResolvedStatus),
		PublishAction:  g.PublishActionToken(),
		Items:          len(g.ItemIDs),
	}
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	trackID, track, ok := s.trackFromRequest(w, r)
	if !ok {
		return
	}
	groups, err := s.roller.Groups(r.Context(), trackID, track)
	if err != nil {
		s.logger.Error("roll up groups failed", zap.Int("track_id", trackID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to roll up groups")
		return
	}
	dtos := make([]groupDTO, 0, len(groups))
	for _, g := range groups {
		metrics.ObserveGroupResolved(string(g.ResolvedStatus))
		dtos = append(dtos, toGroupDTO(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": dtos})
}

type publishRequest struct {
	GroupKey []string `json:"group_key"`
}

func (s *Server) publishGroup(w http.ResponseWriter, r *http.Request) {
	trackID, track, ok := s.trackFromRequest(w, r)
	if !ok {
		return
	}
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.GroupKey) == 0 {
		writeError(w, http.StatusBadRequest, "group_key is required")
		return
	}

	result, err := s.orch.Publish(r.Context(), trackID, pipeline.GroupKey(req.GroupKey), track)
	if err != nil {
		s.writePublishError(w, trackID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempt_id": result.AttemptID,
		"message_id": result.MessageID,
		"items":      result.Items,
		"state":      string(store.AttemptSucceeded),
	})
}

func (s *Server) writePublishError(w http.ResponseWriter, trackID int, err error) {
	var ambiguous *publishing.AmbiguousOutcomeError
	var transport *publishing.TransportError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "group not found")
	case errors.Is(err, publishing.ErrNotEligible):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, publishing.ErrAttemptUnresolved):
		writeError(w, http.StatusConflict, "an uncertain attempt must be resolved first")
	case errors.Is(err, publishing.ErrLeaseHeld):
		metrics.ObserveLeaseContention(strconv.Itoa(trackID))
		writeError(w, http.StatusConflict, "a publish for this group is already in flight")
	case errors.As(err, &ambiguous):
		// The external call may or may not have landed; nothing moved.
		writeJSON(w, http.StatusAccepted, map[string]any{
			"attempt_id": ambiguous.AttemptID,
			"state":      string(store.AttemptUncertain),
			"error":      ambiguous.Error(),
		})
	case errors.As(err, &transport):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"attempt_id": transport.AttemptID,
			"state":      string(store.AttemptFailed),
			"error":      transport.Error(),
		})
	default:
		s.logger.Error("publish failed", zap.Int("track_id", trackID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "publish failed")
	}
}

type resolveRequest struct {
	Verdict string `json:"verdict"`
	Note    string `json:"note"`
}

func (s *Server) resolveAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attempt_id")
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var verdict publishing.Verdict
	switch req.Verdict {
	case "succeeded":
		verdict = publishing.VerdictSucceeded
	case "failed":
		verdict = publishing.VerdictFailed
	default:
		writeError(w, http.StatusBadRequest, "verdict must be succeeded or failed")
		return
	}
	if err := s.orch.ResolveAttempt(r.Context(), attemptID, verdict, req.Note); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "attempt not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"attempt_id": attemptID,
		"verdict":    req.Verdict,
	})
}

func (s *Server) monthlyStats(w http.ResponseWriter, r *http.Request) {
	trackID, _, ok := s.trackFromRequest(w, r)
	if !ok {
		return
	}
	counts, err := s.items.MonthlyStatusCounts(r.Context(), trackID)
	if err != nil {
		s.logger.Error("monthly stats failed", zap.Int("track_id", trackID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load monthly stats")
		return
	}
	type bucketDTO struct {
		Month  time.Time `json:"month"`
		Status string    `json:"status"`
		Count  int64     `json:"count"`
	}
	buckets := make([]bucketDTO, 0, len(counts))
	for _, c := range counts {
		buckets = append(buckets, bucketDTO{Month: c.Month, Status: string(c.Status), Count: c.Count})
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": buckets})
}

func (s *Server) archiveReport(w http.ResponseWriter, r *http.Request) {
	trackID, track, ok := s.trackFromRequest(w, r)
	if !ok {
		return
	}
	if s.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage unavailable")
		return
	}
	counts, err := s.items.MonthlyStatusCounts(r.Context(), trackID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load monthly stats")
		return
	}
	groups, err := s.roller.Groups(r.Context(), trackID, track)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to roll up groups")
		return
	}
	uri, err := s.archiver.ArchiveMonthly(r.Context(), trackID, counts, groups)
	if err != nil {
		s.logger.Error("archive report failed", zap.Int("track_id", trackID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to archive report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uri": uri})
}

// trackFromRequest parses {track_id} and looks up its configuration. A
// false return means the response has already been written.
func (s *Server) trackFromRequest(w http.ResponseWriter, r *http.Request) (int, pipeline.TrackConfig, bool) {
	raw := chi.URLParam(r, "track_id")
	trackID, err := strconv.Atoi(raw)
	if err != nil || trackID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid track_id")
		return 0, pipeline.TrackConfig{}, false
	}
	track, ok := s.cfg.Tracks[raw]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown track")
		return 0, pipeline.TrackConfig{}, false
	}
	return trackID, track, true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
