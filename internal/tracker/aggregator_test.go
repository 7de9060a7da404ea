package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func fill(at time.Time, size, price float64) domain.Activity {
	return domain.Activity{
		Wallet:      "0xwhale",
		ConditionID: "0xc",
		Asset:       "tok_yes",
		Outcome:     "Yes",
		Side:        domain.SideBuy,
		Type:        domain.ActivityTrade,
		Size:        size,
		Price:       price,
		Title:       "Will it rain?",
		Timestamp:   at,
	}
}

func TestAggregator_MergesPartialFills(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	agg := NewAggregator(db, 0)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := agg.Process(ctx, fill(t0, 10, 0.40))
	assert.False(t, first.Merged)
	agg.Process(ctx, fill(t0.Add(10*time.Second), 20, 0.42))
	last := agg.Process(ctx, fill(t0.Add(20*time.Second), 15, 0.41))

	assert.True(t, last.Merged)
	assert.Equal(t, first.Trade.ID, last.Trade.ID)
	assert.InDelta(t, 45, last.Trade.Size, 1e-9)
	assert.InDelta(t, 0.4122, last.Trade.Price, 1e-4)

	stored, ok, err := db.FindRecentTrade(ctx, last.Trade.Key(), t0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 45, stored.Size, 1e-9)

	w, err := db.GetWallet(ctx, "0xwhale")
	require.NoError(t, err)
	assert.Equal(t, 1, w.TradeCount, "partial fills count as one trade")
	assert.InDelta(t, 10*0.40+20*0.42+15*0.41, w.VolumeUSDC, 1e-9)

	m, err := db.GetMarket(ctx, "0xc")
	require.NoError(t, err)
	assert.Equal(t, "tok_yes", m.Instruments.Yes)
	assert.Empty(t, m.Instruments.No)
	assert.InDelta(t, 0.41, m.LastPrice, 1e-9)
}

func TestAggregator_OutOfOrderFillKeepsLatestTimestamp(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	agg := NewAggregator(db, 60*time.Second)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	agg.Process(ctx, fill(t0.Add(30*time.Second), 10, 0.40))
	late := agg.Process(ctx, fill(t0, 10, 0.50))

	assert.True(t, late.Merged)
	assert.Equal(t, t0.Add(30*time.Second), late.Trade.Timestamp)

	// La ventana sigue anclada en el fill más reciente.
	next := agg.Process(ctx, fill(t0.Add(85*time.Second), 5, 0.45))
	assert.True(t, next.Merged)
	assert.InDelta(t, 25, next.Trade.Size, 1e-9)
}

func TestAggregator_WindowEdge(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("exactly window merges", func(t *testing.T) {
		agg := NewAggregator(newTestStore(t), 60*time.Second)
		agg.Process(context.Background(), fill(t0, 10, 0.40))
		got := agg.Process(context.Background(), fill(t0.Add(60*time.Second), 10, 0.50))
		assert.True(t, got.Merged)
		assert.InDelta(t, 20, got.Trade.Size, 1e-9)
	})

	t.Run("past window opens new record", func(t *testing.T) {
		agg := NewAggregator(newTestStore(t), 60*time.Second)
		first := agg.Process(context.Background(), fill(t0, 10, 0.40))
		got := agg.Process(context.Background(), fill(t0.Add(61*time.Second), 10, 0.50))
		assert.False(t, got.Merged)
		assert.NotEqual(t, first.Trade.ID, got.Trade.ID)
		assert.InDelta(t, 10, got.Trade.Size, 1e-9)
		assert.InDelta(t, 0.50, got.Trade.Price, 1e-9)
	})
}

func TestAggregator_KeysIncludeOutcome(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	agg := NewAggregator(db, 0)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	agg.Process(ctx, fill(t0, 10, 0.40))
	no := fill(t0.Add(time.Second), 5, 0.60)
	no.Outcome = "No"
	no.Asset = "tok_no"
	got := agg.Process(ctx, no)

	assert.False(t, got.Merged)
	m, err := db.GetMarket(ctx, "0xc")
	require.NoError(t, err)
	assert.Equal(t, domain.InstrumentPair{Yes: "tok_yes", No: "tok_no"}, m.Instruments)
}

func TestAggregator_StoreFailureStillYieldsTrade(t *testing.T) {
	db := newTestStore(t)
	require.NoError(t, db.Close())
	agg := NewAggregator(db, 0)

	got := agg.Process(context.Background(), fill(time.Now(), 10, 0.40))

	assert.False(t, got.Merged)
	assert.InDelta(t, 10, got.Trade.Size, 1e-9)
	assert.Equal(t, "0xc", got.Source.ConditionID)
}
