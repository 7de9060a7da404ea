package copier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const (
	DefaultBetAmountUSDC     = 10.0
	DefaultBetPercentage     = 0.05
	DefaultSlippageTolerance = 0.01

	maxLimitPrice = 0.99
	minLimitPrice = 0.01
)

var (
	// ErrSideNotMirrorable: la actividad no es BUY ni SELL. Informativo.
	ErrSideNotMirrorable = errors.New("side not mirrorable")
	// ErrNoInstrument: no hay instrument id resuelto ni asset crudo.
	ErrNoInstrument = errors.New("no instrument for outcome")
	// ErrAmountTooSmall: el tamaño calculado redondea a 0.
	ErrAmountTooSmall = errors.New("amount rounds to zero")
)

// Balancer reports the spendable USDC balance.
type Balancer interface {
	Balance(ctx context.Context) (float64, error)
}

// SizingConfig is the target size policy of mirrored orders.
type SizingConfig struct {
	Mode       domain.SizingMode
	FixedUSDC  float64 // FIXED: notional per order
	Percentage float64 // PERCENTAGE: fraction of the balance per order
	Slippage   float64 // tolerance applied to the whale's price
}

// Mapper turns an aggregated trade into a TradeIntent.
type Mapper struct {
	cfg     SizingConfig
	balance Balancer
	now     func() time.Time
}

// NewMapper creates a mapper. balance is only queried in PERCENTAGE mode.
func NewMapper(cfg SizingConfig, balance Balancer) *Mapper {
	if cfg.Mode == "" {
		cfg.Mode = domain.SizingFixed
	}
	if cfg.FixedUSDC <= 0 {
		cfg.FixedUSDC = DefaultBetAmountUSDC
	}
	if cfg.Percentage <= 0 {
		cfg.Percentage = DefaultBetPercentage
	}
	if cfg.Slippage < 0 {
		cfg.Slippage = 0
	}
	return &Mapper{cfg: cfg, balance: balance, now: time.Now}
}

// Map builds the intent for agg. pair holds the resolved instruments of the
// market; when the outcome's id is missing the raw asset of the fill is used.
func (m *Mapper) Map(ctx context.Context, agg domain.AggregatedTrade, pair domain.InstrumentPair) (domain.TradeIntent, error) {
	src := agg.Source
	if !src.Side.Mirrorable() {
		return domain.TradeIntent{}, fmt.Errorf("copier.Map %s: %q: %w", src.ConditionID, src.Side, ErrSideNotMirrorable)
	}

	instrument := pair.For(domain.ParseOutcome(src.Outcome))
	if instrument == "" {
		instrument = src.Asset
	}
	if instrument == "" {
		return domain.TradeIntent{}, fmt.Errorf("copier.Map %s outcome %q: %w", src.ConditionID, src.Outcome, ErrNoInstrument)
	}

	amount, err := m.amount(ctx)
	if err != nil {
		return domain.TradeIntent{}, fmt.Errorf("copier.Map %s: %w", src.ConditionID, err)
	}
	if !amount.IsPositive() {
		return domain.TradeIntent{}, fmt.Errorf("copier.Map %s: %w", src.ConditionID, ErrAmountTooSmall)
	}

	return domain.TradeIntent{
		ID:           uuid.New().String(),
		ConditionID:  src.ConditionID,
		InstrumentID: instrument,
		Outcome:      src.Outcome,
		Side:         src.Side,
		AmountUSDC:   amount,
		LimitPrice:   limitPrice(src.Side, src.Price, m.cfg.Slippage),
		WhalePrice:   src.Price,
		WhaleSize:    agg.Trade.Size,
		Title:        src.Title,
		CreatedAt:    m.now(),
	}, nil
}

// amount applies the sizing policy, rounded down to cents.
func (m *Mapper) amount(ctx context.Context) (decimal.Decimal, error) {
	if m.cfg.Mode != domain.SizingPercentage {
		return decimal.NewFromFloat(m.cfg.FixedUSDC).Truncate(2), nil
	}
	bal, err := m.balance.Balance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance: %w", err)
	}
	return decimal.NewFromFloat(bal).Mul(decimal.NewFromFloat(m.cfg.Percentage)).Truncate(2), nil
}

// limitPrice widens the whale's price by the slippage tolerance and snaps it
// to the 0.01 tick without crossing the tolerance.
func limitPrice(side domain.Side, price, slippage float64) float64 {
	if side == domain.SideBuy {
		p := math.Floor(price*(1+slippage)*100+1e-9) / 100
		return clamp(p)
	}
	p := math.Ceil(price*(1-slippage)*100-1e-9) / 100
	return clamp(p)
}

func clamp(p float64) float64 {
	return math.Max(minLimitPrice, math.Min(maxLimitPrice, p))
}
