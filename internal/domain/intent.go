package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeIntent is a decision to mirror a whale trade. It executes nothing by
// itself; it is handed to the OrderExecutor.
type TradeIntent struct {
	ID           string
	ConditionID  string
	InstrumentID string
	Outcome      string
	Side         Side
	AmountUSDC   decimal.Decimal // notional to spend (BUY) or to unwind (SELL)
	LimitPrice   float64         // whale price adjusted by slippage tolerance
	WhalePrice   float64
	WhaleSize    float64
	Title        string
	CreatedAt    time.Time
}

// Shares returns the number of outcome shares the intent represents at its
// limit price, truncated to 2 decimals (CLOB lot precision).
func (i TradeIntent) Shares() decimal.Decimal {
	if i.LimitPrice <= 0 {
		return decimal.Zero
	}
	return i.AmountUSDC.Div(decimal.NewFromFloat(i.LimitPrice)).Truncate(2)
}

// OrderResult is the execution collaborator's answer to a submitted intent.
type OrderResult struct {
	OrderRef string
	Status   string
	Filled   float64 // USDC matched, when the backend reports it
}

// SizingMode selects how the target notional of an intent is computed.
type SizingMode string

const (
	SizingFixed      SizingMode = "FIXED"
	SizingPercentage SizingMode = "PERCENTAGE"
)
