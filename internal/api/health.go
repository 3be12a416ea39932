package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady probes each dependency concurrently and reports per-check
// status. Any failure turns the overall response into a 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]func() error{
		"storage": func() error { return s.store.Ping(ctx) },
	}

	var mu sync.Mutex
	results := make(map[string]string, len(checks))

	g, _ := errgroup.WithContext(ctx)
	for name, check := range checks {
		g.Go(func() error {
			err := check()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[name] = err.Error()
				return err
			}
			results[name] = "ok"
			return nil
		})
	}

	status := http.StatusOK
	overall := "ready"
	if err := g.Wait(); err != nil {
		status = http.StatusServiceUnavailable
		overall = "not ready"
	}
	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": results,
	})
}
