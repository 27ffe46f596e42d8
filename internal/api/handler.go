package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"RoostMail/internal/db"
	"RoostMail/internal/models"
	"RoostMail/internal/processor"
)

// BatchRunner is the trigger-facing slice of the queue processor.
type BatchRunner interface {
	ProcessBatch(ctx context.Context) (*processor.BatchResult, error)
}

// QueueStore is the handler-facing slice of the store.
type QueueStore interface {
	Enqueue(ctx context.Context, req db.EnqueueRequest) (*models.EmailQueueItem, error)
	EnsurePreference(ctx context.Context, profileID string) (*models.RecipientPreference, error)
	UnsubscribeByToken(ctx context.Context, token string) error
	IncrementOpened(ctx context.Context, templateID string) error
	IncrementClicked(ctx context.Context, templateID string) error
}

type Handler struct {
	Store  QueueStore
	Runner BatchRunner
	Log    *zap.Logger

	// ServiceToken guards the scheduler trigger. Plain shared-secret equality,
	// intended for a trusted network.
	ServiceToken string
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/emails", h.Enqueue)
	mux.HandleFunc("/internal/process-queue", h.ProcessQueue)
	mux.HandleFunc("/internal/preferences", h.Preferences)
	mux.HandleFunc("/unsubscribe", h.Unsubscribe)
	mux.HandleFunc("/track/open", h.TrackOpen)
	mux.HandleFunc("/track/click", h.TrackClick)
	return mux
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProcessQueue is the external scheduler's trigger. One invocation processes
// exactly one bounded batch and returns its summary.
func (h *Handler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	batch, err := h.Runner.ProcessBatch(r.Context())
	if err != nil {
		h.Log.Error("batch processing failed", zap.Error(err))
		http.Error(w, "batch processing failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Queue processed",
		"processed": batch.Processed,
		"results":   batch.Results,
	})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.ServiceToken == "" {
		return false
	}
	expected := "Bearer " + h.ServiceToken
	got := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// Enqueue accepts a new email for delivery. Validation errors (missing
// recipient, unknown or inactive template) fail synchronously and insert
// nothing.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req db.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := h.Store.Enqueue(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrTemplateNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, db.ErrNoRecipient),
			errors.Is(err, db.ErrNoSubject),
			errors.Is(err, db.ErrNoContent),
			errors.Is(err, db.ErrTemplateInactive):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.Log.Error("enqueue failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":            item.ID,
		"status":        item.Status,
		"scheduled_for": item.ScheduledFor,
	})
}

// Preferences is the preference-center backend call: it creates the
// recipient's preference row on first interaction, minting the stable
// unsubscribe token, and returns the row.
func (h *Handler) Preferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	profileID := r.URL.Query().Get("profile")
	if profileID == "" {
		http.Error(w, "profile is required", http.StatusBadRequest)
		return
	}

	pref, err := h.Store.EnsurePreference(r.Context(), profileID)
	if err != nil {
		h.Log.Error("preference upsert failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, pref)
}

// Unsubscribe is the unauthenticated opt-out link from email footers.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	if err := h.Store.UnsubscribeByToken(r.Context(), token); err != nil {
		if errors.Is(err, db.ErrTokenNotFound) {
			http.Error(w, "unknown token", http.StatusNotFound)
			return
		}
		h.Log.Error("unsubscribe failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "You have been unsubscribed"})
}

func (h *Handler) TrackOpen(w http.ResponseWriter, r *http.Request) {
	h.track(w, r, h.Store.IncrementOpened)
}

func (h *Handler) TrackClick(w http.ResponseWriter, r *http.Request) {
	h.track(w, r, h.Store.IncrementClicked)
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request, inc func(context.Context, string) error) {
	templateID := r.URL.Query().Get("template")
	if templateID == "" {
		http.Error(w, "template is required", http.StatusBadRequest)
		return
	}
	if err := inc(r.Context(), templateID); err != nil && !errors.Is(err, db.ErrTemplateNotFound) {
		h.Log.Error("tracking update failed", zap.Error(err))
	}
	// Always 204: tracking endpoints must never break email rendering.
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
