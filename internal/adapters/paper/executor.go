// Package paper simulates order execution for dry runs. Every intent fills
// immediately at its limit price against a virtual USDC balance.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// DefaultBalance is the virtual starting balance in USDC.
const DefaultBalance = 2000.0

// Executor implements ports.OrderExecutor without touching the exchange.
type Executor struct {
	mu      sync.Mutex
	balance decimal.Decimal
	fills   int
}

// NewExecutor creates a simulated executor. A non-positive balance uses DefaultBalance.
func NewExecutor(startBalance float64) *Executor {
	if startBalance <= 0 {
		startBalance = DefaultBalance
	}
	return &Executor{balance: decimal.NewFromFloat(startBalance)}
}

// Submit fills the intent in full. Buys larger than the virtual balance are rejected.
func (e *Executor) Submit(_ context.Context, intent domain.TradeIntent) (domain.OrderResult, error) {
	if !intent.AmountUSDC.IsPositive() {
		return domain.OrderResult{}, fmt.Errorf("paper.Submit %s: non-positive amount: %w",
			intent.ConditionID, domain.ErrExecutionFailure)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch intent.Side {
	case domain.SideBuy:
		if intent.AmountUSDC.GreaterThan(e.balance) {
			return domain.OrderResult{}, fmt.Errorf("paper.Submit %s: insufficient balance %s < %s: %w",
				intent.ConditionID, e.balance.StringFixed(2), intent.AmountUSDC.StringFixed(2), domain.ErrExecutionFailure)
		}
		e.balance = e.balance.Sub(intent.AmountUSDC)
	case domain.SideSell:
		e.balance = e.balance.Add(intent.AmountUSDC)
	default:
		return domain.OrderResult{}, fmt.Errorf("paper.Submit %s: unsupported side %q: %w",
			intent.ConditionID, intent.Side, domain.ErrExecutionFailure)
	}
	e.fills++

	ref := "paper-" + uuid.New().String()
	filled, _ := intent.AmountUSDC.Float64()
	slog.Info("paper fill",
		"ref", ref,
		"side", intent.Side,
		"outcome", intent.Outcome,
		"price", intent.LimitPrice,
		"usdc", intent.AmountUSDC.StringFixed(2),
		"shares", intent.Shares().StringFixed(2),
		"balance", e.balance.StringFixed(2),
	)
	return domain.OrderResult{OrderRef: ref, Status: "matched", Filled: filled}, nil
}

// Balance returns the virtual USDC balance.
func (e *Executor) Balance(context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, _ := e.balance.Float64()
	return f, nil
}

// Fills returns how many intents were simulated.
func (e *Executor) Fills() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fills
}
