package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/akinalp/eventchat/pkg"
)

// Pinger, health check'in bağımlılığı (*sql.DB karşılar).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health godoc
// GET /api/health
// DB erişilemezse 503.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			pkg.ErrorWithMessage(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		pkg.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
