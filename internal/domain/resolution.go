package domain

import (
	"math/big"
	"sort"
	"time"
)

// BotPosition is a held conditional-token balance of our own wallet.
type BotPosition struct {
	ConditionID  string
	Asset        string
	Outcome      string
	OutcomeIndex int
	Size         float64
	Title        string
}

// IndexSet is the bitmask of outcome slots a redemption claim covers (1 << index).
type IndexSet uint64

// IndexSetFor returns the single-slot bitmask for an outcome index.
func IndexSetFor(outcomeIndex int) IndexSet {
	return IndexSet(1) << uint(outcomeIndex)
}

// BuildIndexSets collapses the outcome indices of the held positions into the
// sorted set of distinct bitmasks. Positions at the same index share one mask.
func BuildIndexSets(positions []BotPosition) []IndexSet {
	seen := make(map[IndexSet]struct{}, len(positions))
	sets := make([]IndexSet, 0, len(positions))
	for _, p := range positions {
		if p.OutcomeIndex < 0 || p.OutcomeIndex > 63 {
			continue
		}
		s := IndexSetFor(p.OutcomeIndex)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		sets = append(sets, s)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i] < sets[j] })
	return sets
}

// ResolutionState is the lifecycle of a held market towards redemption.
type ResolutionState string

const (
	StateUnresolved          ResolutionState = "UNRESOLVED"
	StateResolved            ResolutionState = "RESOLVED"
	StateRedemptionSubmitted ResolutionState = "REDEMPTION_SUBMITTED"
	StateRedemptionConfirmed ResolutionState = "REDEMPTION_CONFIRMED"
	StateError               ResolutionState = "ERROR"
)

// Terminal reports whether no further transition is possible.
func (s ResolutionState) Terminal() bool {
	return s == StateRedemptionConfirmed
}

// Resolution is the per-condition state tracked by the redemption scanner.
type Resolution struct {
	ConditionID string
	Title       string
	State       ResolutionState
	Payouts     []*big.Int
	IndexSets   []IndexSet
	TxRef       string
	LastError   string
	UpdatedAt   time.Time
}

// IsResolvedPayout reports whether at least one payout numerator is nonzero.
func IsResolvedPayout(payouts []*big.Int) bool {
	for _, p := range payouts {
		if p != nil && p.Sign() > 0 {
			return true
		}
	}
	return false
}

// ScanReport resume una pasada del scanner de redenciones.
type ScanReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Positions int
	Markets   []Resolution
}

// Count devuelve cuántos mercados terminaron la pasada en el estado dado.
func (r ScanReport) Count(state ResolutionState) int {
	n := 0
	for _, m := range r.Markets {
		if m.State == state {
			n++
		}
	}
	return n
}
