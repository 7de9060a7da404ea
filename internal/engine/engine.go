// Package engine runs the copy-trading loop: poll the watch-list, drop what
// was already seen, aggregate fills and hand every new trade to the copier.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/tracker"
)

const DefaultInterval = 3 * time.Second

// TradeHandler receives every aggregated trade of a tick.
type TradeHandler interface {
	Handle(ctx context.Context, agg domain.AggregatedTrade)
}

// Config of the tick loop.
type Config struct {
	Interval time.Duration // pause between the end of a tick and the next one
	Workers  int           // trade keys processed concurrently; 0 = unbounded
}

// Engine orchestrates one tick at a time. Ticks never overlap.
type Engine struct {
	cfg     Config
	poller  *tracker.Poller
	dedup   *tracker.Deduplicator
	agg     *tracker.Aggregator
	handler TradeHandler

	tickMu sync.Mutex
}

func New(cfg Config, poller *tracker.Poller, dedup *tracker.Deduplicator, agg *tracker.Aggregator, handler TradeHandler) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Engine{cfg: cfg, poller: poller, dedup: dedup, agg: agg, handler: handler}
}

// Run ticks until ctx is cancelled. The first tick only warms the
// deduplicator up.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "interval", e.cfg.Interval, "workers", e.cfg.Workers)

	for {
		e.RunOnce(ctx)

		t := time.NewTimer(e.cfg.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			slog.Info("engine stopped")
			return nil
		case <-t.C:
		}
	}
}

// RunOnce executes one full tick and returns the trades it produced.
func (e *Engine) RunOnce(ctx context.Context) []domain.AggregatedTrade {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	start := time.Now()
	events := e.poller.Poll(ctx)
	fresh := e.dedup.Filter(events)

	results := e.process(ctx, fresh)

	slog.Debug("tick complete",
		"events", len(events),
		"new_trades", len(fresh),
		"seen_keys", e.dedup.Size(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return results
}

// process aggregates and dispatches events. Events of the same trade key
// run sequentially in arrival order; distinct keys run concurrently.
func (e *Engine) process(ctx context.Context, events []domain.Activity) []domain.AggregatedTrade {
	if len(events) == 0 {
		return nil
	}

	var order []domain.TradeKey
	groups := make(map[domain.TradeKey][]domain.Activity)
	for _, ev := range events {
		k := ev.TradeKey()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], ev)
	}

	var (
		mu      sync.Mutex
		results = make([]domain.AggregatedTrade, 0, len(events))
	)
	var g errgroup.Group
	if e.cfg.Workers > 0 {
		g.SetLimit(e.cfg.Workers)
	}
	for _, k := range order {
		group := groups[k]
		g.Go(func() error {
			for _, ev := range group {
				agg := e.agg.Process(ctx, ev)
				e.handler.Handle(ctx, agg)
				mu.Lock()
				results = append(results, agg)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
