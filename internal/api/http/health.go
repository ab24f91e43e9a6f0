package http

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency the health check probes, such as *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthHandler reports the state of each named dependency.
func HealthHandler(serviceName string, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := HealthResponse{
			Status:    "healthy",
			Service:   serviceName,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    make(map[string]string, len(deps)),
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, dep := range deps {
			if err := dep.PingContext(ctx); err != nil {
				health.Status = "unhealthy"
				health.Checks[name] = "down"
			} else {
				health.Checks[name] = "up"
			}
		}

		status := http.StatusOK
		if health.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	}
}
