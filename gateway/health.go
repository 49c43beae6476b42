package gateway

import (
	"context"

	"github.com/jonwraymond/mt5gateway/health"
	"github.com/jonwraymond/mt5gateway/resilience"
	"github.com/jonwraymond/mt5gateway/supervisor"
)

// registerHealthCheckers wires the breaker, supervisor, and sessions
// checks the internal liveness surface needs for its own reconnection and
// degradation decisions, per the spec's "observable stats" requirement.
func (g *Gateway) registerHealthCheckers() {
	g.healthAgg.Register("supervisor", health.NewCheckerFunc("supervisor", g.checkSupervisor))
	g.healthAgg.Register("breaker", health.NewCheckerFunc("breaker", g.checkBreakers))
	g.healthAgg.Register("sessions", health.NewCheckerFunc("sessions", g.checkSessions))
}

func (g *Gateway) checkSupervisor(ctx context.Context) health.Result {
	stats := g.supervisor.Stats()
	details := map[string]any{
		"state":           stats.State.String(),
		"reconnectCount":  stats.ReconnectCount,
		"pendingRequests": stats.PendingRequests,
		"uptime":          stats.Uptime().String(),
	}
	switch stats.State {
	case supervisor.Connected:
		return health.Healthy("connected").WithDetails(details)
	case supervisor.Connecting, supervisor.Reconnecting:
		return health.Degraded("reconnecting").WithDetails(details)
	default:
		return health.Unhealthy("not connected", nil).WithDetails(details)
	}
}

func (g *Gateway) checkBreakers(ctx context.Context) health.Result {
	g.mu.RLock()
	defer g.mu.RUnlock()

	details := make(map[string]any, len(g.agents))
	openCount := 0
	for id, a := range g.agents {
		state := a.BreakerState()
		details[id] = state.String()
		if state == resilience.StateOpen {
			openCount++
		}
	}
	if openCount == 0 {
		return health.Healthy("all breakers closed").WithDetails(details)
	}
	if openCount == len(g.agents) {
		return health.Unhealthy("all agent breakers open", nil).WithDetails(details)
	}
	return health.Degraded("some agent breakers open").WithDetails(details)
}

func (g *Gateway) checkSessions(ctx context.Context) health.Result {
	entries := g.sessionManager.AuditLog()
	return health.Healthy("session manager reachable").WithDetails(map[string]any{
		"auditEntries": len(entries),
		"agentCount":   len(g.agents),
	})
}
