package retention

import (
	"context"
	"testing"
	"time"

	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/usage"
)

var now = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, store usage.Store, ages ...time.Duration) {
	t.Helper()
	for i, age := range ages {
		err := store.Append(context.Background(), &usage.Entry{
			ID:         string(rune('a' + i)),
			Timestamp:  now.Add(-age),
			App:        providers.AppClaude,
			ProviderID: "p",
			StatusCode: 200,
			Success:    true,
			Attempt:    1,
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
}

func TestPruner_Prune(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name        string
		config      Config
		ages        []time.Duration
		wantByAge   int64
		wantByCount int64
		wantLeft    int64
	}{
		{
			name:      "age only",
			config:    Config{RetentionDays: 30},
			ages:      []time.Duration{day, 10 * day, 31 * day, 90 * day},
			wantByAge: 2,
			wantLeft:  2,
		},
		{
			name:        "count only",
			config:      Config{MaxRecords: 2},
			ages:        []time.Duration{day, 2 * day, 3 * day, 4 * day, 5 * day},
			wantByCount: 3,
			wantLeft:    2,
		},
		{
			name:        "age then count",
			config:      Config{RetentionDays: 7, MaxRecords: 1},
			ages:        []time.Duration{day, 2 * day, 8 * day},
			wantByAge:   1,
			wantByCount: 1,
			wantLeft:    1,
		},
		{
			name:     "disabled keeps everything",
			config:   Config{},
			ages:     []time.Duration{day, 400 * day},
			wantLeft: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := usage.NewMemoryStore()
			seed(t, store, tt.ages...)

			cfg := tt.config
			p := NewPruner(store, &cfg)
			p.now = func() time.Time { return now }

			res, err := p.Prune(context.Background())
			if err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			if res.ByAge != tt.wantByAge || res.ByCount != tt.wantByCount {
				t.Errorf("Prune() = %+v, want by_age=%d by_count=%d", res, tt.wantByAge, tt.wantByCount)
			}
			left, _ := store.Count(context.Background(), nil)
			if left != tt.wantLeft {
				t.Errorf("remaining = %d, want %d", left, tt.wantLeft)
			}
		})
	}
}

func TestPruner_KeepsNewest(t *testing.T) {
	store := usage.NewMemoryStore()
	seed(t, store, time.Hour, 3*time.Hour, 2*time.Hour)

	p := NewPruner(store, &Config{MaxRecords: 1})
	if _, err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	entries, _ := store.Query(context.Background(), nil)
	if len(entries) != 1 || entries[0].ID != "a" {
		t.Errorf("kept %+v, want only the newest entry a", entries)
	}
}

func TestPruner_OnPrune(t *testing.T) {
	store := usage.NewMemoryStore()
	seed(t, store, time.Hour, 2*time.Hour)

	p := NewPruner(store, &Config{MaxRecords: 1})
	var got []Result
	p.OnPrune(func(r Result) { got = append(got, r) })

	for i := 0; i < 2; i++ {
		if _, err := p.Prune(context.Background()); err != nil {
			t.Fatalf("Prune() error = %v", err)
		}
	}
	if len(got) != 1 || got[0].ByCount != 1 {
		t.Errorf("OnPrune calls = %+v, want one call deleting 1 by count", got)
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{name: "valid daily schedule", schedule: "0 3 * * *", wantRunning: true},
		{name: "valid hourly schedule", schedule: "0 * * * *", wantRunning: true},
		{name: "empty schedule - no error, not running", schedule: ""},
		{name: "invalid schedule", schedule: "invalid cron", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruner := NewPruner(usage.NewMemoryStore(), &Config{
				PruneSchedule: tt.schedule,
				RetentionDays: 30,
			})
			scheduler := NewScheduler(pruner)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := scheduler.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Fatalf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", scheduler.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning {
				next := scheduler.NextRun()
				if next == nil || !next.After(time.Now()) {
					t.Errorf("NextRun() = %v, want a future time", next)
				}
			}
			scheduler.Stop()
			if scheduler.IsRunning() {
				t.Error("scheduler still running after Stop()")
			}
		})
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	scheduler := NewScheduler(NewPruner(usage.NewMemoryStore(), DefaultConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for scheduler.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if scheduler.IsRunning() {
		t.Error("scheduler did not stop after context cancellation")
	}
}
