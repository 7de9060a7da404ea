// Package copier decides how to mirror an aggregated whale trade and
// dispatches the resulting order.
package copier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

// Resolver maps a market outcome to its tradable instrument id. The market
// row in the store acts as a cache in front of the metadata service.
type Resolver struct {
	store ports.TradeStore
	meta  ports.MarketMetadata
}

func NewResolver(store ports.TradeStore, meta ports.MarketMetadata) *Resolver {
	return &Resolver{store: store, meta: meta}
}

// Resolve returns the known instruments of the market. When the id of the
// requested outcome is missing it asks the metadata service and caches the
// answer. Lookup failures are logged and the cached pair (possibly empty) is
// returned.
func (r *Resolver) Resolve(ctx context.Context, conditionID string, outcome domain.Outcome) domain.InstrumentPair {
	var cached domain.InstrumentPair
	m, err := r.store.GetMarket(ctx, conditionID)
	switch {
	case err == nil:
		cached = m.Instruments
		if cached.For(outcome) != "" {
			return cached
		}
	case !errors.Is(err, domain.ErrNotFound):
		slog.Warn("resolver: cache read failed", "condition_id", conditionID, "err", err)
	}

	fetched, err := r.meta.FetchInstruments(ctx, conditionID)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrNotFound) {
			level = slog.LevelInfo
		}
		slog.Log(ctx, level, "resolver: instrument lookup failed", "condition_id", conditionID, "err", err)
		return cached
	}

	if err := r.store.UpsertMarket(ctx, domain.Market{
		ConditionID: conditionID,
		Instruments: fetched,
		UpdatedAt:   time.Now(),
	}); err != nil {
		slog.Warn("resolver: cache write failed", "condition_id", conditionID, "err", err)
	}
	return cached.Merge(fetched)
}
