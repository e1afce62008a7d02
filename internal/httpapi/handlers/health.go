package handlers

import (
	"context"
	"net/http"
	"time"

	"avatarsynth/internal/httpkit"
)

const checkTimeout = 5 * time.Second

// Health reports liveness. With ?deep=true it also checks the job store
// and the archive provider.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":    "ok",
		"service":   "avatarsynth-api",
		"version":   h.version,
		"auth_mode": h.authMode,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] == "error" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	return map[string]map[string]any{
		"redis":   h.checkRedis(ctx),
		"storage": h.checkStorage(ctx),
	}
}

func (h *Handler) checkRedis(ctx context.Context) map[string]any {
	if h.redis == nil {
		return map[string]any{"status": "skipped", "store": "memory"}
	}

	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.redis.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkStorage(ctx context.Context) map[string]any {
	if h.archive == nil {
		return map[string]any{"status": "skipped", "provider": "none"}
	}

	start := time.Now()
	result := map[string]any{
		"status":   "ok",
		"provider": h.archive.Provider(),
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.archive.Check(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
