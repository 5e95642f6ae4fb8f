package handlers

import (
	"context"
	"net/http"
	"time"

	"timekeeping/apperror"
	"timekeeping/ctxutil"
	"timekeeping/response"

	"go.uber.org/zap"
)

// Pinger is satisfied by *sql.DB and by small adapters around other clients.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, p := range h.checks {
		if err := p.PingContext(ctx); err != nil {
			ctxutil.Logger(ctx, nil).Warn("health check failed", zap.String("check", name), zap.Error(err))
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "up"
	}

	if !healthy {
		response.Error(w, apperror.ErrServiceUnavailable)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": status})
}
