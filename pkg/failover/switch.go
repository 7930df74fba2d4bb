// Package failover chooses the active upstream provider for each app.
//
// Resolution is not sticky: every request scans the app's providers in
// priority order and takes the first one its circuit breaker admits, so a
// higher-priority provider wins again as soon as its cooldown elapses and its
// probe succeeds. Each app owns an independent breaker set; the same provider
// definition used by two apps fails independently in each.
package failover

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/providers"
)

// OutcomeObserver receives every outcome reported to the switch.
type OutcomeObserver func(app providers.App, providerID string, outcome circuit.Outcome)

// TransitionObserver receives every breaker status change.
type TransitionObserver func(app providers.App, tr circuit.Transition)

// Queue is the derived failover order of one app at a point in time.
type Queue struct {
	App                providers.App `json:"app"`
	OrderedProviderIDs []string      `json:"ordered_provider_ids"`
	// ActiveIndex is the slot of the provider that would serve the next
	// request, or -1 when none is eligible.
	ActiveIndex int `json:"active_index"`
}

// Switch resolves providers for the three apps. It is safe for concurrent use.
type Switch struct {
	registry *providers.Registry
	breakers [providers.NumApps]*circuit.Breaker
	stats    *Stats
	logger   *slog.Logger
	now      func() time.Time

	mu                  sync.RWMutex
	outcomeObservers    []OutcomeObserver
	transitionObservers []TransitionObserver
}

// New creates a Switch over registry. Each app gets its own breaker built from cfg.
func New(registry *providers.Registry, cfg circuit.Config) *Switch {
	s := &Switch{
		registry: registry,
		stats:    newStats(),
		logger:   slog.Default().With("component", "failover"),
		now:      time.Now,
	}
	for _, app := range providers.Apps() {
		app := app
		b := circuit.New(cfg)
		b.OnTransition(func(tr circuit.Transition) { s.publishTransition(app, tr) })
		s.breakers[app.Index()] = b
	}
	return s
}

// Registry returns the provider registry backing the switch.
func (s *Switch) Registry() *providers.Registry { return s.registry }

// Breaker returns the breaker of app.
func (s *Switch) Breaker(app providers.App) *circuit.Breaker {
	return s.breakers[app.Index()]
}

// Stats returns the routing counters.
func (s *Switch) Stats() *Stats { return s.stats }

// OnOutcome registers an outcome observer.
func (s *Switch) OnOutcome(fn OutcomeObserver) {
	s.mu.Lock()
	s.outcomeObservers = append(s.outcomeObservers, fn)
	s.mu.Unlock()
}

// OnTransition registers a breaker transition observer.
func (s *Switch) OnTransition(fn TransitionObserver) {
	s.mu.Lock()
	s.transitionObservers = append(s.transitionObservers, fn)
	s.mu.Unlock()
}

// ResolveActive returns the highest-priority provider of app whose breaker
// admits a request at now. If that provider is half-open, the call consumes
// its single probe slot; the caller must follow up with ReportOutcome or
// Abandon.
func (s *Switch) ResolveActive(app providers.App, now time.Time) (providers.Provider, error) {
	return s.resolve(app, now, nil)
}

// ResolveNext is ResolveActive skipping providers already attempted for
// the current request.
func (s *Switch) ResolveNext(app providers.App, now time.Time, attempted []string) (providers.Provider, error) {
	return s.resolve(app, now, attempted)
}

func (s *Switch) resolve(app providers.App, now time.Time, exclude []string) (providers.Provider, error) {
	snap := s.registry.Snapshot(app)
	br := s.breakers[app.Index()]

	considered := make([]string, 0, snap.Len())
	for i := 0; i < snap.Len(); i++ {
		p := snap.At(i)
		considered = append(considered, p.ID)
		if contains(exclude, p.ID) {
			continue
		}
		if br.Acquire(p.ID, now) {
			s.stats.recordResolution(app.String()+"/"+p.ID, i)
			return p, nil
		}
	}

	s.stats.noEligible.Add(1)
	return providers.Provider{}, &NoEligibleProviderError{App: app, Attempted: considered}
}

// ReportOutcome feeds the result of an attempt into the app's breaker. If it
// opens the breaker, the next resolution moves on to the next candidate.
func (s *Switch) ReportOutcome(app providers.App, providerID string, outcome circuit.Outcome) {
	s.ReportOutcomeAt(app, providerID, outcome, s.now())
}

// ReportOutcomeAt is ReportOutcome with an explicit clock reading.
func (s *Switch) ReportOutcomeAt(app providers.App, providerID string, outcome circuit.Outcome, now time.Time) {
	s.breakers[app.Index()].Record(providerID, outcome, now)
	s.stats.recordOutcome(outcome.Success)

	s.mu.RLock()
	observers := s.outcomeObservers
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(app, providerID, outcome)
	}
}

// Abandon releases a probe slot acquired by a resolution that produced no
// outcome, e.g. because the client disconnected first.
func (s *Switch) Abandon(app providers.App, providerID string) {
	s.breakers[app.Index()].Release(providerID)
}

// Active returns the provider that would serve app's next request without
// consuming a half-open probe.
func (s *Switch) Active(app providers.App, now time.Time) (providers.Provider, bool) {
	snap := s.registry.Snapshot(app)
	br := s.breakers[app.Index()]
	for i := 0; i < snap.Len(); i++ {
		if p := snap.At(i); br.Peek(p.ID, now) {
			return p, true
		}
	}
	return providers.Provider{}, false
}

// ActiveProviders returns the active provider id of every app that has one.
func (s *Switch) ActiveProviders(now time.Time) map[providers.App]string {
	out := make(map[providers.App]string, providers.NumApps)
	for _, app := range providers.Apps() {
		if p, ok := s.Active(app, now); ok {
			out[app] = p.ID
		}
	}
	return out
}

// Queue returns the derived failover queue of app.
func (s *Switch) Queue(app providers.App, now time.Time) Queue {
	snap := s.registry.Snapshot(app)
	br := s.breakers[app.Index()]
	q := Queue{App: app, OrderedProviderIDs: snap.IDs(), ActiveIndex: -1}
	for i := 0; i < snap.Len(); i++ {
		if br.Peek(snap.At(i).ID, now) {
			q.ActiveIndex = i
			break
		}
	}
	return q
}

// States returns breaker states for app's providers in priority order.
func (s *Switch) States(app providers.App) []circuit.State {
	snap := s.registry.Snapshot(app)
	br := s.breakers[app.Index()]
	out := make([]circuit.State, 0, snap.Len())
	for _, id := range snap.IDs() {
		out = append(out, br.Snapshot(id))
	}
	return out
}

// Enable manually re-enables a provider by resetting its breaker.
func (s *Switch) Enable(app providers.App, providerID string) error {
	if _, err := s.registry.Lookup(app, providerID); err != nil {
		return err
	}
	s.breakers[app.Index()].Reset(providerID, s.now())
	s.logger.Info("provider manually re-enabled", "app", app.String(), "provider", providerID)
	return nil
}

// Reconfigure atomically replaces app's providers. Breaker state of providers
// that remain is kept; state of removed providers is dropped.
func (s *Switch) Reconfigure(app providers.App, list []providers.Provider) error {
	snap, err := s.registry.Replace(app, list)
	if err != nil {
		return err
	}
	s.breakers[app.Index()].Retain(snap.IDs())
	s.logger.Info("providers reconfigured",
		"app", app.String(),
		"providers", snap.IDs(),
		"version", snap.Version(),
	)
	return nil
}

func (s *Switch) publishTransition(app providers.App, tr circuit.Transition) {
	level := slog.LevelInfo
	if tr.To == circuit.Open {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "circuit transition",
		"app", app.String(),
		"provider", tr.ProviderID,
		"from", tr.From.String(),
		"to", tr.To.String(),
		"failures", tr.Failures,
	)

	s.mu.RLock()
	observers := s.transitionObservers
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(app, tr)
	}
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
