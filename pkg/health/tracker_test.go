package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/failover"
	"mercator-hq/switchboard/pkg/providers"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeProber returns a fixed outcome and counts calls. If gate is set, each
// probe waits for it to be closed.
type fakeProber struct {
	outcome circuit.Outcome
	calls   atomic.Int32
	started chan struct{}
	gate    chan struct{}
}

func (f *fakeProber) Probe(ctx context.Context, p providers.Provider) circuit.Outcome {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.outcome
}

func newTestTracker(t *testing.T, prober Prober) (*Tracker, *failover.Switch) {
	t.Helper()
	reg := providers.NewRegistry()
	list := []providers.Provider{
		{ID: "A", App: providers.AppClaude, BaseURL: "https://a.example", Credential: "ka", Priority: 0},
		{ID: "B", App: providers.AppClaude, BaseURL: "https://b.example", Credential: "kb", Priority: 1},
	}
	if _, err := reg.Replace(providers.AppClaude, list); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	sw := failover.New(reg, circuit.Config{FailureThreshold: 2, Cooldown: time.Minute})
	tr := NewTracker(sw, prober, Config{ProbeMinInterval: time.Hour})
	tr.now = func() time.Time { return t0 }
	return tr, sw
}

func openBreaker(sw *failover.Switch, id string) {
	for i := 0; i < 2; i++ {
		sw.ReportOutcomeAt(providers.AppClaude, id, circuit.Failed(circuit.FailureServerHTTP, 503, 0, nil), t0)
	}
}

func TestTracker_BadgeFromOutcomes(t *testing.T) {
	tr, sw := newTestTracker(t, &fakeProber{})

	if b := tr.Badge(providers.AppClaude, "A"); b != Unknown {
		t.Errorf("initial badge = %v, want unknown", b)
	}

	sw.ReportOutcome(providers.AppClaude, "A", circuit.Succeeded(200, 10*time.Millisecond))
	if b := tr.Badge(providers.AppClaude, "A"); b != Available {
		t.Errorf("badge after success = %v, want available", b)
	}

	sw.ReportOutcome(providers.AppClaude, "A", circuit.Failed(circuit.FailureTransport, 0, 0, errors.New("refused")))
	if b := tr.Badge(providers.AppClaude, "A"); b != Unavailable {
		t.Errorf("badge after failure = %v, want unavailable", b)
	}

	h, err := tr.Provider(providers.AppClaude, "A")
	if err != nil {
		t.Fatalf("Provider() error = %v", err)
	}
	if h.LastObservation == nil || h.LastObservation.Kind != "transport" || h.LastObservation.Error != "refused" {
		t.Errorf("LastObservation = %+v", h.LastObservation)
	}
	if h.Breaker.ConsecutiveFailures != 1 {
		t.Errorf("breaker failures = %d, want 1", h.Breaker.ConsecutiveFailures)
	}

	if _, err := tr.Provider(providers.AppClaude, "missing"); !errors.Is(err, providers.ErrProviderNotFound) {
		t.Errorf("Provider(missing) error = %v", err)
	}
}

func TestDeriveBadge(t *testing.T) {
	ok := Observation{Success: true}
	bad := Observation{Success: false}
	tests := []struct {
		name     string
		state    circuit.State
		obs      Observation
		observed bool
		want     Badge
	}{
		{"never observed", circuit.State{Status: circuit.Closed}, Observation{}, false, Unknown},
		{"closed and healthy", circuit.State{Status: circuit.Closed}, ok, true, Available},
		{"closed but last failed", circuit.State{Status: circuit.Closed}, bad, true, Unavailable},
		{"open", circuit.State{Status: circuit.Open}, ok, true, Unavailable},
		{"half open probing", circuit.State{Status: circuit.HalfOpen, HalfOpenTrials: 1}, ok, true, Unavailable},
		{"half open idle", circuit.State{Status: circuit.HalfOpen}, ok, true, Available},
	}
	for _, tt := range tests {
		if got := deriveBadge(tt.state, tt.obs, tt.observed); got != tt.want {
			t.Errorf("%s: deriveBadge() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTracker_CheckNowCountsWhenAdmitted(t *testing.T) {
	prober := &fakeProber{outcome: circuit.Succeeded(200, 5*time.Millisecond)}
	tr, _ := newTestTracker(t, prober)

	res, err := tr.CheckNow(context.Background(), providers.AppClaude, "A")
	if err != nil {
		t.Fatalf("CheckNow() error = %v", err)
	}
	if !res.Success || !res.Counted || res.Breaker.Status != circuit.Closed {
		t.Errorf("CheckNow() = %+v", res)
	}
	if b := tr.Badge(providers.AppClaude, "A"); b != Available {
		t.Errorf("badge = %v, want available", b)
	}

	if _, err := tr.CheckNow(context.Background(), providers.AppClaude, "A"); !errors.Is(err, ErrProbeRateLimited) {
		t.Errorf("second CheckNow() error = %v, want ErrProbeRateLimited", err)
	}
	if _, err := tr.CheckNow(context.Background(), providers.AppClaude, "B"); err != nil {
		t.Errorf("CheckNow(B) error = %v; limits are per provider", err)
	}
}

func TestTracker_CheckNowDuringCooldownOnlyUpdatesBadge(t *testing.T) {
	prober := &fakeProber{outcome: circuit.Succeeded(200, 0)}
	tr, sw := newTestTracker(t, prober)
	openBreaker(sw, "A")

	res, err := tr.CheckNow(context.Background(), providers.AppClaude, "A")
	if err != nil {
		t.Fatalf("CheckNow() error = %v", err)
	}
	if res.Counted || res.Breaker.Status != circuit.Open {
		t.Errorf("probe during cooldown = %+v, want uncounted and still open", res)
	}
	if b := tr.Badge(providers.AppClaude, "A"); b != Unavailable {
		t.Errorf("badge = %v, want unavailable while open", b)
	}
}

func TestTracker_CheckNowAfterCooldownCloses(t *testing.T) {
	prober := &fakeProber{outcome: circuit.Succeeded(200, 0)}
	tr, sw := newTestTracker(t, prober)
	openBreaker(sw, "A")
	tr.now = func() time.Time { return t0.Add(61 * time.Second) }

	res, err := tr.CheckNow(context.Background(), providers.AppClaude, "A")
	if err != nil {
		t.Fatalf("CheckNow() error = %v", err)
	}
	if !res.Counted || res.Breaker.Status != circuit.Closed {
		t.Errorf("probe after cooldown = %+v, want counted and closed", res)
	}
	if id := mustActive(t, sw); id != "A" {
		t.Errorf("active provider = %s, want A restored", id)
	}
}

func mustActive(t *testing.T, sw *failover.Switch) string {
	t.Helper()
	p, ok := sw.Active(providers.AppClaude, t0.Add(61*time.Second))
	if !ok {
		t.Fatal("no active provider")
	}
	return p.ID
}

func TestTracker_CheckNowSharesInflightProbe(t *testing.T) {
	prober := &fakeProber{
		outcome: circuit.Succeeded(200, 0),
		started: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	tr, _ := newTestTracker(t, prober)

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.CheckNow(context.Background(), providers.AppClaude, "A")
			errs <- err
		}()
	}

	<-prober.started
	time.Sleep(50 * time.Millisecond)
	close(prober.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("CheckNow() error = %v", err)
		}
	}
	if n := prober.calls.Load(); n != 1 {
		t.Errorf("probes sent = %d, want 1", n)
	}
}

func TestTracker_ProbeOpenSkipsClosed(t *testing.T) {
	prober := &fakeProber{outcome: circuit.Failed(circuit.FailureServerHTTP, 500, 0, nil)}
	tr, sw := newTestTracker(t, prober)
	openBreaker(sw, "B")

	if n := tr.ProbeOpen(context.Background()); n != 1 {
		t.Errorf("ProbeOpen() sent %d probes, want 1", n)
	}
	if n := prober.calls.Load(); n != 1 {
		t.Errorf("prober called %d times, want 1", n)
	}
}

func TestTracker_RunDisabled(t *testing.T) {
	tr, _ := newTestTracker(t, &fakeProber{})
	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() with zero interval did not return")
	}
}

func TestHTTPProber(t *testing.T) {
	var gotKey, gotPath string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotPath = r.URL.Path
		w.WriteHeader(status)
	}))
	defer srv.Close()

	p := providers.Provider{ID: "A", App: providers.AppClaude, BaseURL: srv.URL, Credential: "sk-test"}
	prober := &HTTPProber{Client: srv.Client()}

	o := prober.Probe(context.Background(), p)
	if !o.Success || gotKey != "sk-test" || gotPath != "/v1/models" {
		t.Errorf("Probe() = %+v (key %q, path %q)", o, gotKey, gotPath)
	}

	status = http.StatusUnauthorized
	o = prober.Probe(context.Background(), p)
	if o.Success || o.Kind != circuit.FailureClientHTTP || o.StatusCode != 401 {
		t.Errorf("Probe() on 401 = %+v", o)
	}

	srv.Close()
	o = prober.Probe(context.Background(), p)
	if o.Success || o.Kind != circuit.FailureTransport {
		t.Errorf("Probe() on closed server = %+v", o)
	}
}

func TestBadge_UnmarshalText(t *testing.T) {
	var b Badge
	if err := b.UnmarshalText([]byte("available")); err != nil || b != Available {
		t.Errorf("UnmarshalText(available) = %v, %v", b, err)
	}
	if err := b.UnmarshalText([]byte("green")); err == nil {
		t.Error("UnmarshalText(green) succeeded")
	}
}
