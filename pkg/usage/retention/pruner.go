package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/switchboard/pkg/usage"
)

// Config contains configuration for the request log pruner.
type Config struct {
	// RetentionDays is the number of days to keep request logs.
	// 0 keeps them forever.
	RetentionDays int

	// MaxRecords is the maximum number of request logs to keep.
	// 0 means unlimited.
	MaxRecords int64

	// PruneSchedule is a cron expression for scheduled pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 30,
		PruneSchedule: "0 3 * * *",
	}
}

// Result reports what a pruning run deleted.
type Result struct {
	ByAge   int64 `json:"by_age"`
	ByCount int64 `json:"by_count"`
}

// Total returns the number of deleted records.
func (r Result) Total() int64 { return r.ByAge + r.ByCount }

// Pruner enforces retention on request logs.
type Pruner struct {
	store  usage.Store
	config *Config
	logger *slog.Logger
	now    func() time.Time

	onPrune func(Result)
}

// NewPruner creates a new retention pruner.
func NewPruner(store usage.Store, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Pruner{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "usage.retention"),
		now:    time.Now,
	}
}

// OnPrune registers a callback invoked after every successful run that
// deleted at least one record. It must be set before pruning starts.
func (p *Pruner) OnPrune(fn func(Result)) { p.onPrune = fn }

// Config returns the pruner configuration.
func (p *Pruner) Config() *Config { return p.config }

// Prune deletes request logs older than the retention period, then the
// oldest logs beyond the record cap.
func (p *Pruner) Prune(ctx context.Context) (Result, error) {
	var res Result

	if p.config.RetentionDays > 0 {
		cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
		deleted, err := p.store.DeleteBefore(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("prune by age failed: %w", err)
		}
		res.ByAge = deleted
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.store.DeleteOldest(ctx, p.config.MaxRecords)
		if err != nil {
			return res, fmt.Errorf("prune by count failed: %w", err)
		}
		res.ByCount = deleted
	}

	if res.Total() == 0 {
		p.logger.Debug("no request logs pruned",
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	} else {
		p.logger.Info("request logs pruned",
			"by_age", res.ByAge,
			"by_count", res.ByCount,
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
		if p.onPrune != nil {
			p.onPrune(res)
		}
	}

	return res, nil
}
