package api

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the overall health report.
type HealthStatus struct {
	Status string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the health of a single dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "not_configured"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandleHealth reports per-dependency health. The database is
// critical; Redis, the chat channel, and the model APIs degrade
// rather than fail, since the pipeline queues work while they are
// away.
//
//	GET /health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := HealthStatus{
		Status: "healthy",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
		Checks: map[string]ComponentCheck{},
	}

	dbCheck := checkPinger(ctx, h.db)
	status.Checks["database"] = dbCheck

	noncritical := map[string]ComponentCheck{
		"redis":     checkPinger(ctx, h.redis),
		"chat":      checkPinger(ctx, h.chat),
		"model":     checkPinger(ctx, h.model),
		"embedding": checkPinger(ctx, h.embedding),
	}
	degraded := false
	for name, c := range noncritical {
		status.Checks[name] = c
		if c.Status == "down" {
			degraded = true
		}
	}

	code := http.StatusOK
	switch {
	case dbCheck.Status == "down":
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case degraded:
		status.Status = "degraded"
	}

	writeJSON(w, code, status)
}

func checkPinger(ctx context.Context, p Pinger) ComponentCheck {
	if p == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return ComponentCheck{Status: "down", Message: err.Error()}
	}
	return ComponentCheck{Status: "up", Latency: time.Since(start).Round(time.Millisecond).String()}
}
