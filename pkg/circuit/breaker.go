package circuit

import (
	"sync"
	"time"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that opens the breaker.
	DefaultFailureThreshold = 5

	// DefaultCooldown is how long an open breaker rejects requests before admitting a probe.
	DefaultCooldown = 60 * time.Second

	// maxHalfOpenTrials is the number of concurrent probes admitted while half-open.
	maxHalfOpenTrials = 1
)

// Config configures a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	// Default: 5
	FailureThreshold int

	// Cooldown is the time an open breaker waits before admitting a probe.
	// Default: 60s
	Cooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	return c
}

// entry is the mutable state of one provider. Only Breaker methods touch it,
// always under entry.mu.
type entry struct {
	mu    sync.Mutex
	state State
}

// Breaker tracks circuit state for the providers of one app. Entries are
// stored in an arena indexed by slot; the table lock only guards the index and
// is never held while an entry is being transitioned.
type Breaker struct {
	cfg Config

	mu      sync.RWMutex
	slots   map[string]int
	entries []*entry

	observerMu sync.RWMutex
	observer   func(Transition)
}

// New creates a Breaker. Zero config fields take their defaults.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:   cfg.withDefaults(),
		slots: make(map[string]int),
	}
}

// Config returns the effective configuration.
func (b *Breaker) Config() Config {
	return b.cfg
}

// OnTransition registers fn to be called after every status change.
// fn runs on the goroutine that caused the transition and must not block.
func (b *Breaker) OnTransition(fn func(Transition)) {
	b.observerMu.Lock()
	b.observer = fn
	b.observerMu.Unlock()
}

// lookup returns the entry for id without creating it.
func (b *Breaker) lookup(id string) *entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if slot, ok := b.slots[id]; ok {
		return b.entries[slot]
	}
	return nil
}

// entryFor returns the entry for id, creating a Closed entry on first use.
func (b *Breaker) entryFor(id string) *entry {
	if e := b.lookup(id); e != nil {
		return e
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if slot, ok := b.slots[id]; ok {
		return b.entries[slot]
	}
	e := &entry{state: State{ProviderID: id, Status: Closed}}
	b.slots[id] = len(b.entries)
	b.entries = append(b.entries, e)
	return e
}

// Acquire reports whether a request may be sent to provider id at now.
// An open breaker whose cooldown has elapsed moves to HalfOpen and admits
// exactly one probe; every other caller sees it as still open until the probe
// reports an outcome or is released.
func (b *Breaker) Acquire(id string, now time.Time) bool {
	e := b.entryFor(id)

	e.mu.Lock()
	var (
		admitted bool
		tr       *Transition
	)
	switch e.state.Status {
	case Closed:
		admitted = true
	case Open:
		if now.Sub(e.state.OpenedAt) >= b.cfg.Cooldown {
			tr = e.transition(HalfOpen, now)
			e.state.HalfOpenTrials = 1
			admitted = true
		}
	case HalfOpen:
		if e.state.HalfOpenTrials < maxHalfOpenTrials {
			e.state.HalfOpenTrials++
			admitted = true
		}
	}
	e.mu.Unlock()

	b.notify(tr)
	return admitted
}

// IsEligible is Acquire under the name used by the routing layer.
func (b *Breaker) IsEligible(id string, now time.Time) bool {
	return b.Acquire(id, now)
}

// Peek reports whether Acquire would admit a request, without changing state.
// Status views use it so that reading never consumes the half-open probe.
func (b *Breaker) Peek(id string, now time.Time) bool {
	e := b.lookup(id)
	if e == nil {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state.Status {
	case Closed:
		return true
	case Open:
		return now.Sub(e.state.OpenedAt) >= b.cfg.Cooldown
	case HalfOpen:
		return e.state.HalfOpenTrials < maxHalfOpenTrials
	default:
		return false
	}
}

// Release gives back a probe slot that was acquired but never produced an
// outcome, e.g. because the client went away before the upstream answered.
func (b *Breaker) Release(id string) {
	e := b.lookup(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.state.Status == HalfOpen && e.state.HalfOpenTrials > 0 {
		e.state.HalfOpenTrials--
	}
	e.mu.Unlock()
}

// RecordSuccess resets the failure count and closes a half-open breaker.
// Successes that arrive while the breaker is open come from requests admitted
// before it opened and are ignored.
func (b *Breaker) RecordSuccess(id string, now time.Time) {
	e := b.entryFor(id)

	e.mu.Lock()
	var tr *Transition
	switch e.state.Status {
	case Closed:
		e.state.ConsecutiveFailures = 0
		e.state.LastSuccessAt = now
	case HalfOpen:
		e.state.ConsecutiveFailures = 0
		e.state.HalfOpenTrials = 0
		e.state.OpenedAt = time.Time{}
		e.state.LastSuccessAt = now
		tr = e.transition(Closed, now)
	case Open:
	}
	e.mu.Unlock()

	b.notify(tr)
}

// RecordFailure counts a failure of any kind. Reaching the threshold opens the
// breaker; a failed half-open probe re-opens it with a fresh cooldown.
// Failures reported while already open are ignored, so the count never
// exceeds the threshold.
func (b *Breaker) RecordFailure(id string, kind FailureKind, now time.Time) {
	e := b.entryFor(id)

	e.mu.Lock()
	var tr *Transition
	switch e.state.Status {
	case Closed:
		e.state.ConsecutiveFailures++
		e.state.LastFailure = kind
		e.state.LastFailureAt = now
		if e.state.ConsecutiveFailures >= b.cfg.FailureThreshold {
			e.state.ConsecutiveFailures = b.cfg.FailureThreshold
			e.state.OpenedAt = now
			tr = e.transition(Open, now)
		}
	case HalfOpen:
		e.state.ConsecutiveFailures = b.cfg.FailureThreshold
		e.state.LastFailure = kind
		e.state.LastFailureAt = now
		e.state.HalfOpenTrials = 0
		e.state.OpenedAt = now
		tr = e.transition(Open, now)
	case Open:
	}
	e.mu.Unlock()

	b.notify(tr)
}

// Record dispatches an outcome to RecordSuccess or RecordFailure.
func (b *Breaker) Record(id string, o Outcome, now time.Time) {
	if o.Success {
		b.RecordSuccess(id, now)
		return
	}
	b.RecordFailure(id, o.Kind, now)
}

// Reset returns a provider to Closed with zeroed counters. It is used for
// manual re-enable and keeps the entry (and its slot) alive.
func (b *Breaker) Reset(id string, now time.Time) {
	e := b.entryFor(id)

	e.mu.Lock()
	from := e.state.Status
	e.state = State{ProviderID: id, Status: Closed}
	var tr *Transition
	if from != Closed {
		tr = &Transition{ProviderID: id, From: from, To: Closed, At: now}
	}
	e.mu.Unlock()

	b.notify(tr)
}

// Snapshot returns a copy of the provider's state. Unknown providers report a
// fresh Closed state.
func (b *Breaker) Snapshot(id string) State {
	e := b.lookup(id)
	if e == nil {
		return State{ProviderID: id, Status: Closed}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshots returns copies of all known states in creation order.
func (b *Breaker) Snapshots() []State {
	b.mu.RLock()
	entries := make([]*entry, len(b.entries))
	copy(entries, b.entries)
	b.mu.RUnlock()

	out := make([]State, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.state)
		e.mu.Unlock()
	}
	return out
}

// Retain drops the state of providers not listed in ids. It is called when a
// reconfiguration removes providers; surviving providers keep their state.
func (b *Breaker) Retain(ids []string) {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	slots := make(map[string]int, len(keep))
	entries := make([]*entry, 0, len(keep))
	for _, e := range b.entries {
		id := e.providerID()
		if !keep[id] {
			continue
		}
		slots[id] = len(entries)
		entries = append(entries, e)
	}
	b.slots = slots
	b.entries = entries
}

func (e *entry) providerID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ProviderID
}

// transition sets the status and returns the event to publish. Caller holds e.mu.
func (e *entry) transition(to Status, now time.Time) *Transition {
	from := e.state.Status
	e.state.Status = to
	return &Transition{
		ProviderID: e.state.ProviderID,
		From:       from,
		To:         to,
		At:         now,
		Failures:   e.state.ConsecutiveFailures,
	}
}

func (b *Breaker) notify(tr *Transition) {
	if tr == nil {
		return
	}
	b.observerMu.RLock()
	fn := b.observer
	b.observerMu.RUnlock()
	if fn != nil {
		fn(*tr)
	}
}
