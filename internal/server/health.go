package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mediadrop/internal/provider"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
	Details   any             `json:"details,omitempty"`
}

// HandleHealth reports provider reachability and breaker state.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, health)
}

// HandleLive provides a liveness probe (is the process running?)
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
	})
}

func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:  time.Now(),
		Version:    s.cfg.Version,
		Components: make(map[string]ComponentHealth),
	}

	health.Components["provider"] = s.checkProviderHealth(ctx)
	if s.cfg.Breaker != nil {
		health.Components["breaker"] = s.checkBreakerHealth()
	}

	health.Status = determineOverallHealth(health.Components)
	return health
}

func (s *Server) checkProviderHealth(ctx context.Context) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	name := s.cfg.Provider.Name()
	if err := s.cfg.Provider.Ping(ctx); err != nil {
		s.log.ForRequest(ctx).Warn("provider ping failed", map[string]any{"provider": name, "err": err.Error()})
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: name + " unreachable",
		}
	}

	latency := time.Since(start).Milliseconds()

	status := ComponentStatusUp
	message := name + " healthy"
	if latency > 2000 {
		status = ComponentStatusDegraded
		message = name + " latency high"
	}

	return ComponentHealth{
		Status:    status,
		Message:   message,
		LatencyMs: float64(latency),
	}
}

func (s *Server) checkBreakerHealth() ComponentHealth {
	stats := s.cfg.Breaker.Stats()

	status := ComponentStatusUp
	switch s.cfg.Breaker.State() {
	case provider.StateOpen:
		status = ComponentStatusDown
	case provider.StateHalfOpen:
		status = ComponentStatusDegraded
	}

	return ComponentHealth{
		Status:  status,
		Message: "circuit " + stats.State,
		Details: stats,
	}
}

// determineOverallHealth calculates overall health from component statuses
func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	var (
		downCount     int
		degradedCount int
	)

	for _, component := range components {
		switch component.Status {
		case ComponentStatusDown:
			downCount++
		case ComponentStatusDegraded:
			degradedCount++
		}
	}

	if downCount > 0 {
		return HealthStatusUnhealthy
	}
	if degradedCount > 0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}
