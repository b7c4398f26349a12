package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/translation-progress/internal/pipeline"
	storememory "github.com/JakeFAU/translation-progress/internal/storage/memory"
	"github.com/JakeFAU/translation-progress/internal/store"
)

func attemptRouter(h *AttemptHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/v1/tracks/{track_id}/attempts", func(r chi.Router) {
		r.Get("/", h.ListAttempts)
		r.Get("/{attempt_id}", h.GetAttempt)
	})
	return r
}

func seedAttempts(t *testing.T, items *storememory.ItemStore, n int) {
	t.Helper()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, items.RecordAttempt(context.Background(), store.PublishAttempt{
			ID:        string(rune('a' + i)),
			TrackID:   7,
			GroupKey:  pipeline.GroupKey{"ProjectA", "Batch1"},
			State:     store.AttemptSucceeded,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestListAttemptsPagination(t *testing.T) {
	t.Parallel()

	items := storememory.NewItemStore()
	seedAttempts(t, items, 3)
	h := NewAttemptHandler(items, nil)

	rec, body := doJSON(t, attemptRouter(h), http.MethodGet, "/v1/tracks/7/attempts?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	attempts := body["attempts"].([]any)
	require.Len(t, attempts, 2)
	// Newest first.
	first := attempts[0].(map[string]any)
	require.Equal(t, "c", first["id"])

	rec, body = doJSON(t, attemptRouter(h), http.MethodGet, "/v1/tracks/7/attempts?limit=2&offset=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	attempts = body["attempts"].([]any)
	require.Len(t, attempts, 1)
}

func TestListAttemptsInvalidLimit(t *testing.T) {
	t.Parallel()

	h := NewAttemptHandler(storememory.NewItemStore(), nil)
	rec, _ := doJSON(t, attemptRouter(h), http.MethodGet, "/v1/tracks/7/attempts?limit=nope", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAttemptsNilRepo(t *testing.T) {
	t.Parallel()

	h := NewAttemptHandler(nil, nil)
	rec, _ := doJSON(t, attemptRouter(h), http.MethodGet, "/v1/tracks/7/attempts", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetAttemptNotFound(t *testing.T) {
	t.Parallel()

	h := NewAttemptHandler(storememory.NewItemStore(), nil)
	rec, _ := doJSON(t, attemptRouter(h), http.MethodGet, "/v1/tracks/7/attempts/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAttemptReturnsDTO(t *testing.T) {
	t.Parallel()

	items := storememory.NewItemStore()
	seedAttempts(t, items, 1)
	h := NewAttemptHandler(items, nil)

	rec, body := doJSON(t, attemptRouter(h), http.MethodGet, "/v1/tracks/7/attempts/a", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	attempt := body["attempt"].(map[string]any)
	require.Equal(t, "a", attempt["id"])
	require.Equal(t, "succeeded", attempt["state"])
	require.Equal(t, []any{"ProjectA", "Batch1"}, attempt["group_key"])
}
