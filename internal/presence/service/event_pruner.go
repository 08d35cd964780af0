package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ecstasyos/presence/server/internal/presence/store"
)

// EventPruner periodically deletes recorded events older than the
// retention period. A retention of 0 disables pruning entirely.
type EventPruner struct {
	store     store.EventStore
	retention time.Duration
	interval  time.Duration
	logger    *log.Logger
	now       func() time.Time

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

type PrunerConfig struct {
	// RetentionDays is how many days of events to keep. 0 keeps everything.
	RetentionDays int
	// IntervalHours is how often the pruner runs. Defaults to 6.
	IntervalHours int
}

// NewEventPruner creates a pruner but does not start it.
func NewEventPruner(s store.EventStore, cfg PrunerConfig, logger *log.Logger) *EventPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &EventPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		done:      make(chan struct{}),
	}
}

// Start runs an immediate prune, then repeats on the interval until ctx is
// cancelled or Stop is called. Only the first call has any effect.
func (p *EventPruner) Start(ctx context.Context) {
	p.once.Do(func() {
		if p.retention <= 0 {
			p.logger.Printf("event pruner disabled (retention=0)")
			close(p.done)
			return
		}

		ctx, p.cancel = context.WithCancel(ctx)
		go p.loop(ctx)

		p.logger.Printf("event pruner started (retention=%dd, interval=%s)",
			int(p.retention.Hours()/24), p.interval)
	})
}

// Stop signals the loop to exit and waits for it. Safe before Start and
// safe to repeat.
func (p *EventPruner) Stop() {
	p.once.Do(func() { close(p.done) })
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

// PruneNow runs one pass synchronously and returns the number of rows
// deleted.
func (p *EventPruner) PruneNow(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Printf("event prune: deleted %d rows older than %s",
			deleted, cutoff.Format(time.RFC3339))
	}
	return deleted, nil
}

func (p *EventPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *EventPruner) prune(ctx context.Context) {
	if _, err := p.PruneNow(ctx); err != nil {
		p.logger.Printf("event prune error: %v", err)
	}
}
