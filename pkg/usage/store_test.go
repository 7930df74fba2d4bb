package usage

import (
	"context"
	"testing"
	"time"

	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/storage"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Both stores must behave identically.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
}

func sampleEntries() []*Entry {
	return []*Entry{
		{ID: "1", Timestamp: t0, App: providers.AppClaude, ProviderID: "A", Model: "claude-sonnet-4",
			StatusCode: 200, LatencyMS: 100, Success: true, Attempt: 1,
			Tokens: &TokenUsage{InputTokens: 10, OutputTokens: 20, CacheReadTokens: 5}},
		{ID: "2", Timestamp: t0.Add(time.Minute), App: providers.AppClaude, ProviderID: "A",
			StatusCode: 503, LatencyMS: 300, Success: false, Attempt: 1, ErrorKind: "http_5xx"},
		{ID: "3", Timestamp: t0.Add(time.Minute), App: providers.AppClaude, ProviderID: "B",
			StatusCode: 200, LatencyMS: 50, Success: true, Attempt: 2, Streamed: true,
			Tokens: &TokenUsage{InputTokens: 7, OutputTokens: 3}},
		{ID: "4", Timestamp: t0.Add(2 * time.Minute), App: providers.AppCodex, ProviderID: "A",
			StatusCode: 200, LatencyMS: 80, Success: true, Attempt: 1},
	}
}

func TestStore_AppendAndQuery(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, e := range sampleEntries() {
			if err := s.Append(ctx, e); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
		}

		all, err := s.Query(ctx, nil)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(all) != 4 || all[0].ID != "4" {
			t.Fatalf("Query() returned %d entries, first %q; want 4 newest first", len(all), all[0].ID)
		}

		first := all[len(all)-1]
		if first.ID != "1" || first.Tokens == nil || first.Tokens.CacheReadTokens != 5 {
			t.Errorf("oldest entry = %+v", first)
		}
		if !first.Timestamp.Equal(t0) || first.App != providers.AppClaude || first.Model != "claude-sonnet-4" {
			t.Errorf("round trip mismatch: %+v", first)
		}

		failed := false
		res, _ := s.Query(ctx, &Query{App: "claude", Success: &failed})
		if len(res) != 1 || res[0].ID != "2" || res[0].ErrorKind != "http_5xx" || res[0].Tokens != nil {
			t.Errorf("failed claude query = %+v", res)
		}

		since := t0.Add(time.Minute)
		until := t0.Add(2 * time.Minute)
		res, _ = s.Query(ctx, &Query{Since: &since, Until: &until})
		if len(res) != 2 {
			t.Errorf("time range query returned %d, want 2", len(res))
		}

		res, _ = s.Query(ctx, &Query{Limit: 2, Offset: 1})
		if len(res) != 2 {
			t.Errorf("paged query returned %d, want 2", len(res))
		}

		n, _ := s.Count(ctx, &Query{ProviderID: "A"})
		if n != 3 {
			t.Errorf("Count(provider A) = %d, want 3", n)
		}
	})
}

func TestStore_Stats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, e := range sampleEntries() {
			s.Append(ctx, e)
		}

		stats, err := s.Stats(ctx, &Query{App: "claude"})
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if len(stats) != 2 {
			t.Fatalf("Stats() returned %d rows, want 2", len(stats))
		}

		a := stats[0]
		if a.ProviderID != "A" || a.Requests != 2 || a.Successes != 1 || a.Failures != 1 {
			t.Errorf("provider A stats = %+v", a)
		}
		if a.SuccessRate != 0.5 || a.AvgLatencyMS != 200 {
			t.Errorf("provider A rate/latency = %v/%v", a.SuccessRate, a.AvgLatencyMS)
		}
		if a.InputTokens != 10 || a.OutputTokens != 20 {
			t.Errorf("provider A tokens = %d/%d", a.InputTokens, a.OutputTokens)
		}
		if !a.LastRequestAt.Equal(t0.Add(time.Minute)) {
			t.Errorf("provider A last request = %v", a.LastRequestAt)
		}
	})
}

func TestStore_Delete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, e := range sampleEntries() {
			s.Append(ctx, e)
		}

		n, err := s.DeleteBefore(ctx, t0.Add(time.Minute))
		if err != nil || n != 1 {
			t.Fatalf("DeleteBefore() = %d, %v; want 1", n, err)
		}

		n, err = s.DeleteOldest(ctx, 1)
		if err != nil || n != 2 {
			t.Fatalf("DeleteOldest(1) = %d, %v; want 2", n, err)
		}
		left, _ := s.Query(ctx, nil)
		if len(left) != 1 || left[0].ID != "4" {
			t.Errorf("remaining = %+v, want only entry 4", left)
		}

		if n, _ := s.DeleteOldest(ctx, 10); n != 0 {
			t.Errorf("DeleteOldest under cap deleted %d", n)
		}
	})
}
