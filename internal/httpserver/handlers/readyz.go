package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
)

type readyzResponse struct {
	Ready   bool       `json:"ready"`
	Monitor bool       `json:"monitor"`
	Store   string     `json:"store"`
	SavedAt *time.Time `json:"snapshot_saved_at,omitempty"`
}

// Readyz reports ready once the engine has started. A failing snapshot
// store only degrades readiness: the engine keeps running in memory.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyzResponse{
			Monitor: d.Monitor.Ready(),
			Store:   "ok",
		}

		if d.Snapshot != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			at, found, err := d.Snapshot.SavedAt(ctx)
			switch {
			case err != nil:
				d.Logger.Warn("snapshot store check failed", logger.Error(err))
				resp.Store = "degraded"
			case found:
				resp.SavedAt = &at
			default:
				resp.Store = "empty"
			}
		}

		resp.Ready = resp.Monitor
		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
