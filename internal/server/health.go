package server

import (
	"context"
	"fmt"
	"net/http"
)

// HandleHealth reports liveness; it degrades to 503 once the root context is
// cancelled so load balancers stop routing during shutdown.
func HandleHealth(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `{"status": "ok"}`)
		}
	})
}
