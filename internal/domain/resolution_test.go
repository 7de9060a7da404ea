package domain_test

import (
	"math/big"
	"testing"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestBuildIndexSets_CollapsesDuplicates(t *testing.T) {
	positions := []domain.BotPosition{
		{ConditionID: "0xc", OutcomeIndex: 0, Size: 10},
		{ConditionID: "0xc", OutcomeIndex: 0, Size: 3},
	}
	assert.Equal(t, []domain.IndexSet{1}, domain.BuildIndexSets(positions))
}

func TestBuildIndexSets_BothOutcomes(t *testing.T) {
	positions := []domain.BotPosition{
		{ConditionID: "0xc", OutcomeIndex: 1},
		{ConditionID: "0xc", OutcomeIndex: 0},
	}
	assert.Equal(t, []domain.IndexSet{1, 2}, domain.BuildIndexSets(positions))
}

func TestIsResolvedPayout(t *testing.T) {
	assert.False(t, domain.IsResolvedPayout([]*big.Int{big.NewInt(0), big.NewInt(0)}))
	assert.False(t, domain.IsResolvedPayout(nil))
	assert.True(t, domain.IsResolvedPayout([]*big.Int{big.NewInt(1), big.NewInt(0)}))
	assert.True(t, domain.IsResolvedPayout([]*big.Int{big.NewInt(0), big.NewInt(1)}))
}

func TestParseOutcome_CaseInsensitive(t *testing.T) {
	for _, label := range []string{"Yes", "yes", "YES", " yEs "} {
		assert.Equal(t, domain.OutcomeYes, domain.ParseOutcome(label), label)
	}
	assert.Equal(t, domain.OutcomeNo, domain.ParseOutcome("NO"))
	assert.Equal(t, domain.OutcomeUnknown, domain.ParseOutcome("Trump"))

	pair := domain.InstrumentPair{Yes: "tok_yes", No: "tok_no"}
	assert.Equal(t, "tok_yes", pair.For(domain.ParseOutcome("YES")))
	assert.Equal(t, "", pair.For(domain.OutcomeUnknown))
}

func TestInstrumentPair_MergeKeepsKnownIDs(t *testing.T) {
	p := domain.InstrumentPair{Yes: "y1"}
	merged := p.Merge(domain.InstrumentPair{No: "n1"})
	assert.Equal(t, domain.InstrumentPair{Yes: "y1", No: "n1"}, merged)
	assert.Equal(t, merged, merged.Merge(domain.InstrumentPair{}))
}
