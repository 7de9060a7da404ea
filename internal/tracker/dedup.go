package tracker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// DedupOptions tunes the seen-set policy.
type DedupOptions struct {
	// IncludeOutcome adds the outcome label to the key, so a wallet trading
	// both sides of a market is seen as two logical orders.
	IncludeOutcome bool
	// SeenTTL expires keys idle for longer than this. 0 keeps them for the
	// life of the process.
	SeenTTL time.Duration
}

// Deduplicator drops feed entries whose logical order was already seen.
// The first batch only warms the seen set up: history present at startup
// is never mirrored.
type Deduplicator struct {
	mu       sync.Mutex
	opts     DedupOptions
	seen     map[domain.LogicalTradeKey]time.Time
	warmedUp bool
	now      func() time.Time
}

func NewDeduplicator(opts DedupOptions) *Deduplicator {
	return &Deduplicator{
		opts: opts,
		seen: make(map[domain.LogicalTradeKey]time.Time),
		now:  time.Now,
	}
}

// Filter records every key in events and returns the new trades, in order.
// Non-trade entries mark their key as seen but are never returned.
func (d *Deduplicator) Filter(events []domain.Activity) []domain.Activity {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)

	if !d.warmedUp {
		for _, ev := range events {
			d.seen[ev.DedupKey(d.opts.IncludeOutcome)] = now
		}
		d.warmedUp = true
		slog.Info("dedup warm-up complete", "events", len(events), "keys", len(d.seen))
		return nil
	}

	var fresh []domain.Activity
	for _, ev := range events {
		key := ev.DedupKey(d.opts.IncludeOutcome)
		_, known := d.seen[key]
		d.seen[key] = now
		if known || !ev.IsTrade() {
			continue
		}
		fresh = append(fresh, ev)
	}
	return fresh
}

// Size returns the number of keys currently held.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Deduplicator) expire(now time.Time) {
	if d.opts.SeenTTL <= 0 {
		return
	}
	for k, last := range d.seen {
		if now.Sub(last) > d.opts.SeenTTL {
			delete(d.seen, k)
		}
	}
}
