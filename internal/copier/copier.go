package copier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

// Copier alerts on every detected whale trade and mirrors the ones it can.
type Copier struct {
	resolver *Resolver
	mapper   *Mapper
	exec     ports.OrderExecutor
	store    ports.TradeStore
	alert    ports.Alerter
	mode     string // "paper" o "live", solo para alertas
}

func NewCopier(resolver *Resolver, mapper *Mapper, exec ports.OrderExecutor, store ports.TradeStore, alert ports.Alerter, mode string) *Copier {
	return &Copier{resolver: resolver, mapper: mapper, exec: exec, store: store, alert: alert, mode: mode}
}

// Handle processes one aggregated trade. Failures are logged and alerted;
// nothing is retried.
func (c *Copier) Handle(ctx context.Context, agg domain.AggregatedTrade) {
	src := agg.Source
	log := slog.With(
		"wallet", domain.ShortAddr(src.Wallet),
		"condition_id", src.ConditionID,
		"side", src.Side,
		"outcome", src.Outcome,
	)

	c.send(ctx, detectionMessage(agg))

	if !src.Side.Mirrorable() {
		log.Info("copier: informational activity, not mirrored")
		return
	}

	var pair domain.InstrumentPair
	if outcome := domain.ParseOutcome(src.Outcome); outcome != domain.OutcomeUnknown {
		pair = c.resolver.Resolve(ctx, src.ConditionID, outcome)
	}

	intent, err := c.mapper.Map(ctx, agg, pair)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoInstrument):
		log.Warn("copier: unmirrorable trade", "err", err)
		c.send(ctx, fmt.Sprintf("⚠️ *Unmirrorable trade*\n%s\nno instrument id for outcome `%s`",
			title(src), src.Outcome))
		return
	case errors.Is(err, ErrAmountTooSmall):
		log.Warn("copier: target amount is zero, skipping")
		return
	default:
		log.Warn("copier: mapping failed", "err", err)
		c.send(ctx, fmt.Sprintf("⚠️ *Copy skipped*\n%s\n%s", title(src), err))
		return
	}

	log = log.With("intent_id", intent.ID, "usdc", intent.AmountUSDC.StringFixed(2), "limit", intent.LimitPrice)

	res, err := c.exec.Submit(ctx, intent)
	bt := domain.BotTrade{
		IntentID:     intent.ID,
		ConditionID:  intent.ConditionID,
		Outcome:      intent.Outcome,
		InstrumentID: intent.InstrumentID,
		Side:         intent.Side,
		EntryPrice:   intent.LimitPrice,
		SizeUSDC:     intent.AmountUSDC.InexactFloat64(),
		Timestamp:    time.Now(),
	}
	if err != nil {
		bt.Status = domain.BotTradeFailed
		c.record(ctx, bt)
		log.Warn("copier: order rejected", "err", err)
		c.send(ctx, fmt.Sprintf("❌ *Copy failed* (%s)\n%s\n%s $%s @ %.2f\n`%s`",
			c.mode, title(src), intent.Side, intent.AmountUSDC.StringFixed(2), intent.LimitPrice, err))
		return
	}

	bt.Status = domain.BotTradeOpen
	bt.OrderRef = res.OrderRef
	c.record(ctx, bt)
	log.Info("copier: order placed", "order_ref", res.OrderRef, "status", res.Status)
	c.send(ctx, fmt.Sprintf("✅ *Copied* (%s)\n%s\n%s %s $%s @ %.2f\norder `%s` %s",
		c.mode, title(src), intent.Side, intent.Outcome, intent.AmountUSDC.StringFixed(2), intent.LimitPrice,
		res.OrderRef, strings.ToLower(res.Status)))
}

func (c *Copier) record(ctx context.Context, bt domain.BotTrade) {
	if err := c.store.SaveBotTrade(ctx, bt); err != nil {
		slog.Warn("copier: save bot trade failed", "condition_id", bt.ConditionID, "err", err)
	}
}

func (c *Copier) send(ctx context.Context, msg string) {
	if err := c.alert.Alert(ctx, msg); err != nil {
		slog.Warn("copier: alert failed", "err", err)
	}
}

func detectionMessage(agg domain.AggregatedTrade) string {
	src := agg.Source
	verb := "new trade"
	if agg.Merged {
		verb = "fill merged"
	}
	return fmt.Sprintf("🐋 *Whale %s* `%s`\n%s\n%s %s %.2f @ %.3f (total %.2f @ %.4f)",
		verb, domain.ShortAddr(src.Wallet), title(src),
		src.Side, src.Outcome, src.Size, src.Price, agg.Trade.Size, agg.Trade.Price)
}

func title(a domain.Activity) string {
	return domain.TruncateTitle(a.Title, a.ConditionID, 60)
}
