package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/failover"
	"mercator-hq/switchboard/pkg/providers"
)

// ErrProbeRateLimited is returned by CheckNow when the provider was probed
// less than ProbeMinInterval ago.
var ErrProbeRateLimited = errors.New("probe rate limited")

// probeConcurrency bounds the periodic loop's parallel probes.
const probeConcurrency = 4

// Config configures a Tracker.
type Config struct {
	// ProbeInterval is how often open providers are probed. 0 disables the loop.
	ProbeInterval time.Duration

	// ProbeTimeout bounds a single probe.
	// Default: 10s
	ProbeTimeout time.Duration

	// ProbeMinInterval is the minimum time between two probes of the same provider.
	// Default: 10s
	ProbeMinInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.ProbeMinInterval <= 0 {
		c.ProbeMinInterval = 10 * time.Second
	}
	return c
}

// Prober sends a probe to a provider and reports the outcome.
type Prober interface {
	Probe(ctx context.Context, p providers.Provider) circuit.Outcome
}

// HTTPProber probes a provider with a model listing request.
type HTTPProber struct {
	Client *http.Client
}

// Probe implements Prober.
func (h *HTTPProber) Probe(ctx context.Context, p providers.Provider) circuit.Outcome {
	start := time.Now()
	req, err := p.ProbeRequest()
	if err != nil {
		return circuit.Failed(circuit.FailureTransport, 0, 0, err)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req.WithContext(ctx))
	latency := time.Since(start)
	if err != nil {
		return circuit.Failed(circuit.ClassifyError(err), 0, latency, err)
	}
	resp.Body.Close()

	if kind, failed := circuit.ClassifyStatus(resp.StatusCode); failed {
		return circuit.Failed(kind, resp.StatusCode, latency, fmt.Errorf("probe returned HTTP %d", resp.StatusCode))
	}
	return circuit.Succeeded(resp.StatusCode, latency)
}

type key struct {
	app providers.App
	id  string
}

func (k key) String() string { return k.app.String() + "/" + k.id }

// Tracker derives health badges from observed outcomes and runs active probes.
type Tracker struct {
	sw     *failover.Switch
	prober Prober
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	last     map[key]Observation
	limiters map[key]*rate.Limiter
	onProbe  func(app providers.App, providerID string, outcome circuit.Outcome)
}

// NewTracker creates a tracker and subscribes it to the switch's outcomes.
func NewTracker(sw *failover.Switch, prober Prober, cfg Config) *Tracker {
	t := &Tracker{
		sw:       sw,
		prober:   prober,
		cfg:      cfg.withDefaults(),
		logger:   slog.Default().With("component", "health"),
		now:      time.Now,
		last:     make(map[key]Observation),
		limiters: make(map[key]*rate.Limiter),
	}
	sw.OnOutcome(t.Observe)
	return t
}

// OnProbe registers a callback invoked after every active probe.
func (t *Tracker) OnProbe(fn func(app providers.App, providerID string, outcome circuit.Outcome)) {
	t.mu.Lock()
	t.onProbe = fn
	t.mu.Unlock()
}

// Observe records the latest outcome of a provider. The switch calls it for
// every reported outcome.
func (t *Tracker) Observe(app providers.App, providerID string, o circuit.Outcome) {
	obs := Observation{
		At:         t.now().UTC(),
		Success:    o.Success,
		StatusCode: o.StatusCode,
		LatencyMS:  o.Latency.Milliseconds(),
	}
	if !o.Success {
		obs.Kind = o.Kind.String()
		if o.Err != nil {
			obs.Error = o.Err.Error()
		}
	}

	t.mu.Lock()
	t.last[key{app, providerID}] = obs
	t.mu.Unlock()
}

// CheckNow probes a provider immediately. Concurrent checks of the same
// provider share one probe. If the breaker admits a request (closed, or open
// with its cooldown elapsed) the result is reported to the breaker like any
// request outcome; otherwise it only updates the badge.
func (t *Tracker) CheckNow(ctx context.Context, app providers.App, providerID string) (CheckResult, error) {
	p, err := t.sw.Registry().Lookup(app, providerID)
	if err != nil {
		return CheckResult{}, err
	}
	k := key{app, providerID}

	ch := t.group.DoChan(k.String(), func() (any, error) {
		if !t.limiter(k).Allow() {
			return CheckResult{}, ErrProbeRateLimited
		}
		return t.probe(ctx, p), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return CheckResult{}, res.Err
		}
		return res.Val.(CheckResult), nil
	case <-ctx.Done():
		return CheckResult{}, ctx.Err()
	}
}

func (t *Tracker) probe(ctx context.Context, p providers.Provider) CheckResult {
	now := t.now()
	br := t.sw.Breaker(p.App)
	admitted := br.Acquire(p.ID, now)

	// The probe is shared by every caller waiting on it, so it must not be
	// cut short by the first caller's context.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.ProbeTimeout)
	defer cancel()
	outcome := t.prober.Probe(pctx, p)

	if admitted {
		t.sw.ReportOutcome(p.App, p.ID, outcome)
	} else {
		t.Observe(p.App, p.ID, outcome)
	}

	level := slog.LevelDebug
	if !outcome.Success {
		level = slog.LevelWarn
	}
	t.logger.Log(ctx, level, "provider probed",
		"app", p.App.String(),
		"provider", p.ID,
		"success", outcome.Success,
		"status", outcome.StatusCode,
		"latency_ms", outcome.Latency.Milliseconds(),
		"counted", admitted,
	)

	t.mu.RLock()
	fn := t.onProbe
	t.mu.RUnlock()
	if fn != nil {
		fn(p.App, p.ID, outcome)
	}

	return CheckResult{
		App:        p.App,
		ProviderID: p.ID,
		Success:    outcome.Success,
		StatusCode: outcome.StatusCode,
		LatencyMS:  outcome.Latency.Milliseconds(),
		Counted:    admitted,
		CheckedAt:  now.UTC(),
		Breaker:    br.Snapshot(p.ID),
		Error:      errString(outcome.Err),
	}
}

func (t *Tracker) limiter(k key) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[k]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.cfg.ProbeMinInterval), 1)
		t.limiters[k] = l
	}
	return l
}

// Badge returns the display health of a provider. Badges are informational
// and never used for routing.
func (t *Tracker) Badge(app providers.App, providerID string) Badge {
	st := t.sw.Breaker(app).Snapshot(providerID)

	t.mu.RLock()
	obs, observed := t.last[key{app, providerID}]
	t.mu.RUnlock()

	return deriveBadge(st, obs, observed)
}

func deriveBadge(st circuit.State, obs Observation, observed bool) Badge {
	switch st.Status {
	case circuit.Open:
		return Unavailable
	case circuit.HalfOpen:
		if st.HalfOpenTrials > 0 {
			return Unavailable
		}
	case circuit.Closed:
	}
	if !observed {
		return Unknown
	}
	if !obs.Success {
		return Unavailable
	}
	return Available
}

// Provider returns the health view of one provider.
func (t *Tracker) Provider(app providers.App, providerID string) (ProviderHealth, error) {
	p, err := t.sw.Registry().Lookup(app, providerID)
	if err != nil {
		return ProviderHealth{}, err
	}
	return t.view(p), nil
}

// All returns the health view of every configured provider, grouped by app in
// failover order.
func (t *Tracker) All() []ProviderHealth {
	var out []ProviderHealth
	for _, app := range providers.Apps() {
		for _, p := range t.sw.Registry().Snapshot(app).Providers() {
			out = append(out, t.view(p))
		}
	}
	return out
}

func (t *Tracker) view(p providers.Provider) ProviderHealth {
	st := t.sw.Breaker(p.App).Snapshot(p.ID)

	t.mu.RLock()
	obs, observed := t.last[key{p.App, p.ID}]
	t.mu.RUnlock()

	h := ProviderHealth{
		App:        p.App,
		ProviderID: p.ID,
		Name:       p.Name(),
		BaseURL:    p.BaseURL,
		Priority:   p.Priority,
		Badge:      deriveBadge(st, obs, observed),
		Breaker:    st,
	}
	if observed {
		h.LastObservation = &obs
	}
	return h
}

// Run probes open providers every ProbeInterval until ctx is cancelled. It
// returns immediately when the interval is 0.
func (t *Tracker) Run(ctx context.Context) error {
	if t.cfg.ProbeInterval <= 0 {
		return nil
	}

	t.logger.Info("health probe loop started", "interval", t.cfg.ProbeInterval)
	ticker := time.NewTicker(t.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("health probe loop stopped")
			return nil
		case <-ticker.C:
			t.ProbeOpen(ctx)
		}
	}
}

// ProbeOpen probes every provider whose breaker is not closed and returns
// the number of probes sent.
func (t *Tracker) ProbeOpen(ctx context.Context) int {
	var targets []providers.Provider
	for _, app := range providers.Apps() {
		br := t.sw.Breaker(app)
		for _, p := range t.sw.Registry().Snapshot(app).Providers() {
			if br.Snapshot(p.ID).Status != circuit.Closed {
				targets = append(targets, p)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	var (
		mu   sync.Mutex
		sent int
	)
	for _, p := range targets {
		p := p
		g.Go(func() error {
			if _, err := t.CheckNow(gctx, p.App, p.ID); err != nil {
				if !errors.Is(err, ErrProbeRateLimited) {
					t.logger.Debug("probe skipped", "app", p.App.String(), "provider", p.ID, "error", err)
				}
				return nil
			}
			mu.Lock()
			sent++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return sent
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
