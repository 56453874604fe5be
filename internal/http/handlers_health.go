package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// HealthCheck is one named readiness check, such as a database or session store ping.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// readyTimeout bounds the whole readiness check.
const readyTimeout = 3 * time.Second

// readyHandler runs every check concurrently and answers 503 if any fails.
// Failure details are reduced to "down"; the reason is only logged by the caller's check.
func readyHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		results := make([]string, len(checks))
		var g errgroup.Group
		for i, c := range checks {
			g.Go(func() error {
				results[i] = "ok"
				if err := c.Check(ctx); err != nil {
					results[i] = "down"
					return err
				}
				return nil
			})
		}
		err := g.Wait()

		body := map[string]any{"status": "ok"}
		status := http.StatusOK
		if err != nil {
			body["status"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
		detail := make(map[string]string, len(checks))
		for i, c := range checks {
			detail[c.Name] = results[i]
		}
		body["checks"] = detail
		WriteJSON(w, status, body)
	}
}
