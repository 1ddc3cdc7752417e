package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"vidtube-backend/internal/observability"
)

// TokenSweeper clears stored refresh tokens whose expiry has passed.
type TokenSweeper interface {
	ClearExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// SweepHandler is a cron-triggered endpoint that prunes expired refresh
// tokens still sitting on user records. It answers 404 unless a cron
// secret is configured, so the route stays invisible in deployments that
// never schedule it.
type SweepHandler struct {
	sweeper    TokenSweeper
	logger     *observability.Logger
	cronSecret string
}

func NewSweepHandler(sweeper TokenSweeper, logger *observability.Logger, cronSecret string) *SweepHandler {
	return &SweepHandler{
		sweeper:    sweeper,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
	}
}

func (h *SweepHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "not found"})
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "unauthorized"})
		return
	}

	cleared, err := h.sweeper.ClearExpiredRefreshTokens(r.Context())
	if err != nil {
		h.logger.Error("refresh_token_sweep_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "sweep failed"})
		return
	}

	h.logger.Info("refresh_token_sweep_completed", map[string]any{"cleared": cleared})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cleared": cleared,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
