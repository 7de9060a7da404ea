package ports

import (
	"context"
	"math/big"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// OrderExecutor sends mirrored orders to the exchange (or simulates them).
type OrderExecutor interface {
	// Submit places the intent. Rejections are wrapped in domain.ErrExecutionFailure.
	Submit(ctx context.Context, intent domain.TradeIntent) (domain.OrderResult, error)

	// Balance returns the spendable USDC balance used for percentage sizing.
	Balance(ctx context.Context) (float64, error)
}

// ConditionalTokens is the subset of the CTF contract the redemption scanner needs.
type ConditionalTokens interface {
	// PayoutNumerator reads payoutNumerators(conditionId, index).
	PayoutNumerator(ctx context.Context, conditionID string, index int) (*big.Int, error)

	// RedeemPositions submits redeemPositions for the given index sets and
	// returns the transaction hash.
	RedeemPositions(ctx context.Context, conditionID string, indexSets []domain.IndexSet) (string, error)

	// WaitSettlement blocks until the transaction is mined. It returns false
	// when the transaction reverted.
	WaitSettlement(ctx context.Context, txRef string) (bool, error)
}
