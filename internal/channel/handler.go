package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"vidtube-backend/internal/auth"
)

// Reads is the query side the handler needs; Writes covers the edge
// mutations. The Postgres Repository provides both.
type Reads interface {
	Profile(ctx context.Context, username, viewerID string) (Profile, error)
}

type Writes interface {
	Subscribe(ctx context.Context, subscriberID, channelUsername string) error
	Unsubscribe(ctx context.Context, subscriberID, channelUsername string) error
}

type Handler struct {
	reads  Reads
	writes Writes
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{reads: repo, writes: repo}
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized access")
		return
	}

	username := strings.TrimSpace(r.PathValue("username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is missing")
		return
	}

	profile, err := h.reads.Profile(r.Context(), username, identity.ID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	writeData(w, http.StatusOK, profile, "user channel fetched successfully")
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.mutateEdge(w, r, h.writes.Subscribe, "subscribed to channel")
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.mutateEdge(w, r, h.writes.Unsubscribe, "unsubscribed from channel")
}

func (h *Handler) mutateEdge(w http.ResponseWriter, r *http.Request, mutate func(ctx context.Context, subscriberID, channelUsername string) error, message string) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized access")
		return
	}

	username := strings.TrimSpace(r.PathValue("username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is missing")
		return
	}

	if err := mutate(r.Context(), identity.ID, username); err != nil {
		h.writeRepoError(w, err)
		return
	}

	writeData(w, http.StatusOK, struct{}{}, message)
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrChannelNotFound):
		writeError(w, http.StatusNotFound, ErrChannelNotFound.Error())
	case errors.Is(err, ErrSelfSubscribe):
		writeError(w, http.StatusBadRequest, ErrSelfSubscribe.Error())
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "something went wrong")
	}
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"statusCode": status,
		"data":       data,
		"message":    message,
		"success":    true,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"statusCode": status,
		"error":      message,
		"success":    false,
	})
}
