package usage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. It backs tests and runs where the
// state database is unavailable.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry // append order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores a copy of e.
func (s *MemoryStore) Append(ctx context.Context, e *Entry) error {
	cp := *e
	if e.Tokens != nil {
		t := *e.Tokens
		cp.Tokens = &t
	}

	s.mu.Lock()
	s.entries = append(s.entries, &cp)
	s.mu.Unlock()
	return nil
}

// Query returns entries matching q, newest first.
func (s *MemoryStore) Query(ctx context.Context, q *Query) ([]*Entry, error) {
	if q == nil {
		q = &Query{}
	}
	matched := s.matching(q)

	start := q.Offset
	if start > len(matched) {
		return []*Entry{}, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*Entry, 0, end-start)
	for _, e := range matched[start:end] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// Count returns the number of entries matching q.
func (s *MemoryStore) Count(ctx context.Context, q *Query) (int64, error) {
	if q == nil {
		q = &Query{}
	}
	return int64(len(s.matching(q))), nil
}

// Stats aggregates entries matching q per app and provider.
func (s *MemoryStore) Stats(ctx context.Context, q *Query) ([]ProviderStats, error) {
	if q == nil {
		q = &Query{}
	}

	type key struct{ app, provider string }
	agg := make(map[key]*ProviderStats)
	latency := make(map[key]int64)

	for _, e := range s.matching(q) {
		k := key{e.App.String(), e.ProviderID}
		st, ok := agg[k]
		if !ok {
			st = &ProviderStats{App: k.app, ProviderID: k.provider}
			agg[k] = st
		}
		st.Requests++
		if e.Success {
			st.Successes++
		}
		latency[k] += e.LatencyMS
		if e.Tokens != nil {
			st.InputTokens += e.Tokens.InputTokens
			st.OutputTokens += e.Tokens.OutputTokens
		}
		if e.Timestamp.After(st.LastRequestAt) {
			st.LastRequestAt = e.Timestamp
		}
	}

	out := make([]ProviderStats, 0, len(agg))
	for k, st := range agg {
		st.Failures = st.Requests - st.Successes
		st.SuccessRate = float64(st.Successes) / float64(st.Requests)
		st.AvgLatencyMS = float64(latency[k]) / float64(st.Requests)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].App != out[j].App {
			return out[i].App < out[j].App
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	return out, nil
}

// DeleteBefore removes entries older than cutoff.
func (s *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// DeleteOldest removes the oldest entries so that at most keep remain.
func (s *MemoryStore) DeleteOldest(ctx context.Context, keep int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int64(len(s.entries)) <= keep {
		return 0, nil
	}
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].Timestamp.Before(s.entries[j].Timestamp)
	})
	drop := int64(len(s.entries)) - keep
	s.entries = append([]*Entry(nil), s.entries[drop:]...)
	return drop, nil
}

// matching returns entries matching q, newest first.
func (s *MemoryStore) matching(q *Query) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if e := s.entries[i]; matches(e, q) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func matches(e *Entry, q *Query) bool {
	if q.App != "" && e.App.String() != q.App {
		return false
	}
	if q.ProviderID != "" && e.ProviderID != q.ProviderID {
		return false
	}
	if q.Since != nil && e.Timestamp.Before(*q.Since) {
		return false
	}
	if q.Until != nil && !e.Timestamp.Before(*q.Until) {
		return false
	}
	if q.Success != nil && e.Success != *q.Success {
		return false
	}
	return true
}
