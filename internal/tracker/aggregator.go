package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

// DefaultWindow is how long after the last fill a new fill still belongs to
// the same logical order.
const DefaultWindow = 60 * time.Second

// Aggregator folds partial fills into stable WalletTrade records.
type Aggregator struct {
	store  ports.TradeStore
	window time.Duration
}

func NewAggregator(store ports.TradeStore, window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{store: store, window: window}
}

// Process merges ev into the latest record of its trade key when it falls in
// the window, or opens a new record otherwise. Store failures are logged and
// the event still yields an AggregatedTrade. Calls for the same trade key
// must be serialized by the caller.
func (a *Aggregator) Process(ctx context.Context, ev domain.Activity) domain.AggregatedTrade {
	log := slog.With(
		"wallet", domain.ShortAddr(ev.Wallet),
		"condition_id", ev.ConditionID,
		"side", ev.Side,
		"outcome", ev.Outcome,
	)

	trade := domain.NewWalletTrade(ev)
	merged := false
	prev, ok, err := a.store.FindRecentTrade(ctx, ev.TradeKey(), ev.Timestamp.Add(-a.window))
	if err != nil {
		log.Warn("aggregator: lookup failed, opening new record", "err", err)
	} else if ok && prev.WithinWindow(ev.Timestamp, a.window) {
		trade = domain.MergeFill(prev, ev)
		merged = true
	}

	market := domain.Market{
		ConditionID: ev.ConditionID,
		Title:       ev.Title,
		LastPrice:   ev.Price,
		UpdatedAt:   ev.Timestamp,
	}
	switch domain.ParseOutcome(ev.Outcome) {
	case domain.OutcomeYes:
		market.Instruments.Yes = ev.Asset
	case domain.OutcomeNo:
		market.Instruments.No = ev.Asset
	}
	if err := a.store.UpsertMarket(ctx, market); err != nil {
		log.Warn("aggregator: upsert market failed", "err", err)
	}

	newTrades := 1
	if merged {
		newTrades = 0
	}
	if err := a.store.UpsertWallet(ctx, ev.Wallet, newTrades, ev.Size*ev.Price, ev.Timestamp); err != nil {
		log.Warn("aggregator: upsert wallet failed", "err", err)
	}

	if err := a.store.SaveTrade(ctx, &trade); err != nil {
		log.Warn("aggregator: save trade failed", "err", err)
	}

	log.Debug("aggregated fill",
		"merged", merged,
		"size", trade.Size,
		"vwap", trade.Price,
	)
	return domain.AggregatedTrade{Trade: trade, Source: ev, Merged: merged}
}
