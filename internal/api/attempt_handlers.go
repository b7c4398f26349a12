package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/translation-progress/internal/store"
)

const (
	defaultAttemptLimit = 50
	maxAttemptLimit     = 500
	attemptTimeout      = 3 * time.Second
)

// AttemptHandler exposes read-only publish attempt endpoints.
type AttemptHandler struct {
	repo    store.AttemptRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewAttemptHandler wires the repository and logger.
func NewAttemptHandler(repo store.AttemptRepository, logger *zap.Logger) *AttemptHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptHandler{
		repo:    repo,
		timeout: attemptTimeout,
		logger:  logger,
	}
}

// ListAttempts handles GET /v1/tracks/{track_id}/attempts?limit=&offset=. It
// returns {"attempts": [...]} on success, 400 for invalid parameters, 503
// when the repo is unavailable, or 500 if the repository call fails.
func (h *AttemptHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "attempt repository unavailable")
		return
	}
	trackID, err := parseTrackID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultAttemptLimit, maxAttemptLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	attempts, err := h.repo.ListAttempts(ctx, trackID, limit, offset)
	if err != nil {
		h.logger.Error("list attempts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempts": toAttemptDTOs(attempts),
	})
}

// GetAttempt handles GET /v1/tracks/{track_id}/attempts/{attempt_id}. It
// returns {"attempt": {...}} on success, 404 when the repository reports
// store.ErrNotFound, 503 if the repo is not initialized, or 500 otherwise.
func (h *AttemptHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "attempt repository unavailable")
		return
	}
	attemptID := chi.URLParam(r, "attempt_id")
	if attemptID == "" {
		writeError(w, http.StatusBadRequest, "attempt_id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	attempt, err := h.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "attempt not found")
			return
		}
		h.logger.Error("get attempt failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load attempt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempt": toAttemptDTO(attempt)})
}

func parseTrackID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "track_id")
	if raw == "" {
		return 0, errors.New("track_id is required")
	}
	trackID, err := strconv.Atoi(raw)
	if err != nil || trackID <= 0 {
		return 0, errors.New("invalid track_id")
	}
	return trackID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func toAttemptDTOs(in []store.PublishAttempt) []attemptDTO {
	out := make([]attemptDTO, 0, len(in))
	for _, attempt := range in {
		out = append(out, toAttemptDTO(attempt))
	}
	return out
}

func toAttemptDTO(attempt store.PublishAttempt) attemptDTO {
	return attemptDTO{
		ID:         attempt.ID,
		TrackID:    attempt.TrackID,
		GroupKey:   []string(attempt.GroupKey),
		State:      string(attempt.State),
		Reason:     attempt.Reason,
		StartedAt:  attempt.StartedAt,
		ResolvedAt: attempt.ResolvedAt,
	}
}

type attemptDTO struct {
	ID         string     `json:"id"`
	TrackID    int        `json:"track_id"`
	GroupKey   []string   `json:"group_key"`
	State      string     `json:"state"`
	Reason     string     `json:"reason,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
