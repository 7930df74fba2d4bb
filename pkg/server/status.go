package server

import (
	"context"
	"time"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/failover"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/takeover"
)

// Status is a point-in-time view of the proxy.
type Status struct {
	Running   bool                        `json:"running"`
	Port      int                         `json:"port"`
	StartedAt time.Time                   `json:"started_at,omitempty"`
	Apps      map[providers.App]AppStatus `json:"apps"`
	Failover  failover.StatsSnapshot      `json:"failover"`
}

// AppStatus is the routing and takeover state of one app.
type AppStatus struct {
	// ActiveProvider is the provider the next request would go to. Empty
	// when no provider is eligible.
	ActiveProvider string          `json:"active_provider,omitempty"`
	Providers      []string        `json:"providers"`
	Breakers       []circuit.State `json:"breakers"`
	Takeover       takeover.Status `json:"takeover"`
}

// Status reports the proxy state. A takeover store error is returned with
// the rest of the status filled in.
func (s *Server) Status(ctx context.Context) (Status, error) {
	s.mu.RLock()
	st := Status{
		Running:   s.running,
		Port:      s.port,
		StartedAt: s.startedAt,
		Apps:      make(map[providers.App]AppStatus, providers.NumApps),
		Failover:  s.sw.Stats().Snapshot(),
	}
	s.mu.RUnlock()

	now := time.Now()
	var firstErr error
	for _, app := range providers.Apps() {
		as := AppStatus{
			Providers: s.sw.Registry().Snapshot(app).IDs(),
			Breakers:  s.sw.States(app),
		}
		if p, ok := s.sw.Active(app, now); ok {
			as.ActiveProvider = p.ID
		}
		tk, err := s.tk.Status(ctx, app)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		as.Takeover = tk
		st.Apps[app] = as
	}
	return st, firstErr
}
