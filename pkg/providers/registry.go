package providers

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Snapshot is an immutable, priority-ordered view of one app's providers.
// Providers are addressed by slot (their position in priority order); the id
// index maps provider ids to slots.
type Snapshot struct {
	app       App
	version   uint64
	providers []Provider
	slots     map[string]int
}

// NewSnapshot validates providers and orders them by ascending priority.
// Providers with equal priority keep their input order.
func NewSnapshot(app App, list []Provider) (*Snapshot, error) {
	if !app.Valid() {
		return nil, &UnknownAppError{Value: app.String()}
	}

	ordered := make([]Provider, 0, len(list))
	slots := make(map[string]int, len(list))
	for _, p := range list {
		if err := p.validate(app); err != nil {
			return nil, err
		}
		if _, dup := slots[p.ID]; dup {
			return nil, &InvalidProviderError{ProviderID: p.ID, Reason: "duplicate id"}
		}
		slots[p.ID] = -1
		ordered = append(ordered, p.clone())
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	for i, p := range ordered {
		slots[p.ID] = i
	}

	return &Snapshot{app: app, providers: ordered, slots: slots}, nil
}

// App returns the app the snapshot belongs to.
func (s *Snapshot) App() App { return s.app }

// Version increases every time the registry replaces the app's snapshot.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of providers.
func (s *Snapshot) Len() int { return len(s.providers) }

// At returns the provider in slot i.
func (s *Snapshot) At(i int) Provider { return s.providers[i] }

// Slot returns the slot of a provider id.
func (s *Snapshot) Slot(id string) (int, bool) {
	i, ok := s.slots[id]
	return i, ok
}

// Get returns the provider with the given id.
func (s *Snapshot) Get(id string) (Provider, bool) {
	i, ok := s.slots[id]
	if !ok {
		return Provider{}, false
	}
	return s.providers[i], true
}

// IDs returns provider ids in priority order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, len(s.providers))
	for i, p := range s.providers {
		ids[i] = p.ID
	}
	return ids
}

// Providers returns a copy of the providers in priority order.
func (s *Snapshot) Providers() []Provider {
	out := make([]Provider, len(s.providers))
	copy(out, s.providers)
	return out
}

// Registry owns the current snapshot for every app.
type Registry struct {
	mu        sync.RWMutex
	snapshots [NumApps]*Snapshot
	versions  atomic.Uint64
}

// NewRegistry creates a registry with an empty snapshot for each app.
func NewRegistry() *Registry {
	r := &Registry{}
	for _, app := range Apps() {
		r.snapshots[app.Index()] = &Snapshot{app: app, slots: map[string]int{}}
	}
	return r
}

// Replace validates list and atomically installs it as the app's snapshot.
// On error the previous snapshot stays in place.
func (r *Registry) Replace(app App, list []Provider) (*Snapshot, error) {
	snap, err := NewSnapshot(app, list)
	if err != nil {
		return nil, err
	}
	snap.version = r.versions.Add(1)

	r.mu.Lock()
	r.snapshots[app.Index()] = snap
	r.mu.Unlock()

	return snap, nil
}

// Snapshot returns the current snapshot for app. It never returns nil.
func (r *Registry) Snapshot(app App) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshots[app.Index()]
}

// Lookup returns a provider by app and id.
func (r *Registry) Lookup(app App, id string) (Provider, error) {
	p, ok := r.Snapshot(app).Get(id)
	if !ok {
		return Provider{}, &ProviderNotFoundError{App: app, ProviderID: id}
	}
	return p, nil
}

// All returns every registered provider grouped by app.
func (r *Registry) All() map[App][]Provider {
	out := make(map[App][]Provider, NumApps)
	for _, app := range Apps() {
		out[app] = r.Snapshot(app).Providers()
	}
	return out
}
