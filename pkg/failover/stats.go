package failover

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats counts routing decisions. All counters are updated atomically.
type Stats struct {
	resolutions  atomic.Int64
	noEligible   atomic.Int64
	failovers    atomic.Int64
	perProvider  sync.Map // map[string]*atomic.Int64, keyed "app/provider"
	startedAt    time.Time
	outcomeOK    atomic.Int64
	outcomeError atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Resolutions         int64            `json:"resolutions"`
	NoEligible          int64            `json:"no_eligible"`
	Failovers           int64            `json:"failovers"`
	Successes           int64            `json:"successes"`
	Failures            int64            `json:"failures"`
	ResolvedPerProvider map[string]int64 `json:"resolved_per_provider"`
	Since               time.Time        `json:"since"`
}

func newStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

func (s *Stats) recordResolution(key string, slot int) {
	s.resolutions.Add(1)
	if slot > 0 {
		s.failovers.Add(1)
	}
	val, _ := s.perProvider.LoadOrStore(key, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

func (s *Stats) recordOutcome(success bool) {
	if success {
		s.outcomeOK.Add(1)
		return
	}
	s.outcomeError.Add(1)
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	per := make(map[string]int64)
	s.perProvider.Range(func(key, value interface{}) bool {
		per[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return StatsSnapshot{
		Resolutions:         s.resolutions.Load(),
		NoEligible:          s.noEligible.Load(),
		Failovers:           s.failovers.Load(),
		Successes:           s.outcomeOK.Load(),
		Failures:            s.outcomeError.Load(),
		ResolvedPerProvider: per,
		Since:               s.startedAt,
	}
}
