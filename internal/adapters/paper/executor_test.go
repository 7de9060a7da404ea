package paper_test

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/adapters/paper"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

func intent(side domain.Side, usdc string) domain.TradeIntent {
	return domain.TradeIntent{
		ConditionID: "0xc",
		Outcome:     "Yes",
		Side:        side,
		AmountUSDC:  decimal.RequireFromString(usdc),
		LimitPrice:  0.41,
	}
}

func TestExecutor_DefaultBalance(t *testing.T) {
	bal, err := paper.NewExecutor(0).Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, paper.DefaultBalance, bal)
}

func TestExecutor_BuyThenSell(t *testing.T) {
	ctx := context.Background()
	ex := paper.NewExecutor(100)

	res, err := ex.Submit(ctx, intent(domain.SideBuy, "10.25"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.OrderRef, "paper-"))
	assert.Equal(t, "matched", res.Status)
	assert.InDelta(t, 10.25, res.Filled, 1e-9)

	_, err = ex.Submit(ctx, intent(domain.SideSell, "5"))
	require.NoError(t, err)

	bal, err := ex.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 94.75, bal, 1e-9)
	assert.Equal(t, 2, ex.Fills())
}

func TestExecutor_RejectsInsufficientBalance(t *testing.T) {
	ex := paper.NewExecutor(5)

	_, err := ex.Submit(context.Background(), intent(domain.SideBuy, "10"))
	assert.ErrorIs(t, err, domain.ErrExecutionFailure)
	assert.Equal(t, 0, ex.Fills())
}

func TestExecutor_RejectsZeroAmount(t *testing.T) {
	_, err := paper.NewExecutor(5).Submit(context.Background(), intent(domain.SideBuy, "0"))
	assert.ErrorIs(t, err, domain.ErrExecutionFailure)
}

func TestExecutor_OrderRefsAreUnique(t *testing.T) {
	ex := paper.NewExecutor(100)
	a, err := ex.Submit(context.Background(), intent(domain.SideBuy, "1"))
	require.NoError(t, err)
	b, err := ex.Submit(context.Background(), intent(domain.SideBuy, "1"))
	require.NoError(t, err)
	assert.NotEqual(t, a.OrderRef, b.OrderRef)
}
