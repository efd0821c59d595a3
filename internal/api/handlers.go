package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/leeaandrob/xrpdigest/internal/content"
	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/leeaandrob/xrpdigest/internal/scheduler"
	"github.com/leeaandrob/xrpdigest/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DigestReader is the read side of the digest store.
type DigestReader interface {
	GetDigest(ctx context.Context, slug string) (*models.Digest, error)
	ListDigests(ctx context.Context, limit int) ([]models.Digest, error)
	GetStats(ctx context.Context) (*storage.Stats, error)
}

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	store   DigestReader
	runner  scheduler.Runner
	secret  string
	limiter *rate.Limiter
}

// NewHandlers creates new API handlers.
func NewHandlers(store DigestReader, runner scheduler.Runner, secret string, limiter *rate.Limiter) *Handlers {
	return &Handlers{
		store:   store,
		runner:  runner,
		secret:  secret,
		limiter: limiter,
	}
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func getLimit(r *http.Request, defaultLimit int) int {
	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return limit
}

// ============================================================================
// AUTH
// ============================================================================

// authorized accepts the shared secret as a bearer token or a secret query
// parameter; either one matching is enough. An unset secret rejects every
// caller.
func (h *Handlers) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}

	ok := h.matches(r.URL.Query().Get("secret"))
	if scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " "); found && strings.EqualFold(scheme, "Bearer") {
		ok = h.matches(strings.TrimSpace(token)) || ok
	}
	return ok
}

func (h *Handlers) matches(provided string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) == 1
}

// RequireSecret rejects requests without the shared secret.
func (h *Handlers) RequireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r) {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// TRIGGER
// ============================================================================

// TriggerWeeklyDigest runs the pipeline once for the previous week.
func (h *Handlers) TriggerWeeklyDigest(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		respondError(w, http.StatusTooManyRequests, "Too many trigger requests")
		return
	}

	res, err := h.runner.GenerateWeeklyDigest(r.Context())
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"run_id":     res.RunID,
		"slug":       res.Digest.Slug,
		"title":      res.Digest.Title,
		"week_range": res.Digest.WeekRange,
		"sources":    res.Sources,
	})
}

func (h *Handlers) respondRunError(w http.ResponseWriter, err error) {
	var conflict *content.ConflictError
	switch {
	case errors.As(err, &conflict):
		respondJSON(w, http.StatusConflict, map[string]string{
			"error": "Digest already exists for this week",
			"slug":  conflict.Slug,
		})
	case errors.Is(err, content.ErrSynthesis):
		log.Error().Err(err).Msg("Weekly digest synthesis failed")
		respondJSON(w, http.StatusBadGateway, map[string]string{
			"error":  "Synthesis failed",
			"detail": err.Error(),
		})
	case errors.Is(err, content.ErrMalformedOutput):
		log.Error().Err(err).Msg("Weekly digest output rejected")
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  "Synthesis output was malformed",
			"detail": err.Error(),
		})
	default:
		log.Error().Err(err).Msg("Weekly digest failed")
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "Failed to generate weekly digest",
			"detail": err.Error(),
		})
	}
}

// ============================================================================
// DIGEST HANDLERS
// ============================================================================

// GetDigests returns recent digests, newest week first.
func (h *Handlers) GetDigests(w http.ResponseWriter, r *http.Request) {
	limit := getLimit(r, 12)

	digests, err := h.store.ListDigests(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch digests")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"digests": digests,
		"count":   len(digests),
	})
}

// GetDigestBySlug returns one digest.
func (h *Handlers) GetDigestBySlug(w http.ResponseWriter, r *http.Request) {
	digest, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, digest)
}

// GetDigestHTML serves the rendered article body.
func (h *Handlers) GetDigestHTML(w http.ResponseWriter, r *http.Request) {
	digest, ok := h.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(digest.HTML))
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*models.Digest, bool) {
	slug := chi.URLParam(r, "slug")

	digest, err := h.store.GetDigest(r.Context(), slug)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Digest not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch digest")
		return nil, false
	}
	return digest, true
}

// ============================================================================
// STATS & HEALTH
// ============================================================================

// GetStats returns storage statistics.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// HealthCheck returns API health status.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
