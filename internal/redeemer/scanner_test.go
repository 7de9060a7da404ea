package redeemer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

type fakePositions struct {
	positions []domain.BotPosition
	err       error
}

func (f *fakePositions) FetchPositions(context.Context) ([]domain.BotPosition, error) {
	return f.positions, f.err
}

type redeemCall struct {
	cid  string
	sets []domain.IndexSet
}

// fakeCTF simula el contrato: payouts por mercado y resultados de settlement en cola.
type fakeCTF struct {
	mu         sync.Mutex
	payouts    map[string][]int64
	payoutErr  error
	redeemErr  error
	settle     []bool
	settleErr  error
	redeems    []redeemCall
	payoutRead int
}

func (f *fakeCTF) PayoutNumerator(_ context.Context, cid string, index int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payoutRead++
	if f.payoutErr != nil {
		return nil, f.payoutErr
	}
	p := f.payouts[cid]
	if index >= len(p) {
		return big.NewInt(0), nil
	}
	return big.NewInt(p[index]), nil
}

func (f *fakeCTF) RedeemPositions(_ context.Context, cid string, sets []domain.IndexSet) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.redeemErr != nil {
		return "", f.redeemErr
	}
	f.redeems = append(f.redeems, redeemCall{cid: cid, sets: sets})
	return fmt.Sprintf("0xtx%d", len(f.redeems)), nil
}

func (f *fakeCTF) WaitSettlement(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settleErr != nil {
		return false, f.settleErr
	}
	if len(f.settle) == 0 {
		return true, nil
	}
	ok := f.settle[0]
	f.settle = f.settle[1:]
	return ok, nil
}

type countingAlerter struct {
	mu   sync.Mutex
	msgs []string
}

func (c *countingAlerter) Alert(_ context.Context, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func pos(cid string, idx int) domain.BotPosition {
	return domain.BotPosition{ConditionID: cid, OutcomeIndex: idx, Size: 10, Title: "Will it rain?"}
}

func newTestScanner(t *testing.T, positions []domain.BotPosition, ctf *fakeCTF) (*Scanner, *storage.SQLiteStorage, *countingAlerter) {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	alerts := &countingAlerter{}
	return NewScanner(&fakePositions{positions: positions}, ctf, db, alerts, Config{}), db, alerts
}

func TestScan_ZeroPayoutsStayUnresolved(t *testing.T) {
	ctf := &fakeCTF{payouts: map[string][]int64{"0xa": {0, 0}}}
	s, db, _ := newTestScanner(t, []domain.BotPosition{pos("0xa", 0)}, ctf)

	report, err := s.Scan(context.Background())

	require.NoError(t, err)
	require.Len(t, report.Markets, 1)
	assert.Equal(t, domain.StateUnresolved, report.Markets[0].State)
	assert.Empty(t, ctf.redeems)
	_, err = db.GetMarket(context.Background(), "0xa")
	assert.ErrorIs(t, err, domain.ErrNotFound, "unresolved markets are not flagged")
}

func TestScan_DuplicateIndexSingleSet(t *testing.T) {
	ctf := &fakeCTF{payouts: map[string][]int64{"0xa": {1, 0}}}
	s, db, alerts := newTestScanner(t, []domain.BotPosition{pos("0xa", 0), pos("0xa", 0)}, ctf)

	report, err := s.Scan(context.Background())

	require.NoError(t, err)
	require.Len(t, ctf.redeems, 1)
	assert.Equal(t, []domain.IndexSet{1}, ctf.redeems[0].sets)
	assert.Equal(t, domain.StateRedemptionConfirmed, report.Markets[0].State)
	assert.Equal(t, "0xtx1", report.Markets[0].TxRef)
	assert.Equal(t, 2, report.Positions)

	m, err := db.GetMarket(context.Background(), "0xa")
	require.NoError(t, err)
	assert.True(t, m.Resolved)
	require.Len(t, alerts.msgs, 1)
	assert.Contains(t, alerts.msgs[0], "Redeemed")
}

func TestScan_BothIndicesOneRequest(t *testing.T) {
	ctf := &fakeCTF{payouts: map[string][]int64{"0xa": {1, 1}}}
	s, _, _ := newTestScanner(t, []domain.BotPosition{pos("0xa", 1), pos("0xa", 0)}, ctf)

	_, err := s.Scan(context.Background())

	require.NoError(t, err)
	require.Len(t, ctf.redeems, 1)
	assert.Equal(t, []domain.IndexSet{1, 2}, ctf.redeems[0].sets)
}

func TestScan_ConfirmedIsTerminal(t *testing.T) {
	ctf := &fakeCTF{payouts: map[string][]int64{"0xa": {0, 1}}}
	s, _, _ := newTestScanner(t, []domain.BotPosition{pos("0xa", 1)}, ctf)

	_, err := s.Scan(context.Background())
	require.NoError(t, err)
	reads := ctf.payoutRead

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, ctf.redeems, 1)
	assert.Equal(t, reads, ctf.payoutRead, "confirmed markets are skipped")
	assert.Equal(t, domain.StateRedemptionConfirmed, report.Markets[0].State)
	assert.False(t, s.pending())
}

func TestScan_RevertedReturnsToResolved(t *testing.T) {
	ctf := &fakeCTF{payouts: map[string][]int64{"0xa": {1, 0}}, settle: []bool{false, true}}
	s, _, alerts := newTestScanner(t, []domain.BotPosition{pos("0xa", 0)}, ctf)

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, report.Markets[0].State)
	assert.Equal(t, "transaction reverted", report.Markets[0].LastError)
	assert.True(t, s.pending())
	assert.Contains(t, alerts.msgs[0], "reverted")

	report, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateRedemptionConfirmed, report.Markets[0].State)
	assert.Len(t, ctf.redeems, 2)
}

func TestScan_ErrorIsRetried(t *testing.T) {
	ctf := &fakeCTF{
		payouts:   map[string][]int64{"0xa": {1, 0}},
		redeemErr: fmt.Errorf("send: %w", domain.ErrExecutionFailure),
	}
	s, _, alerts := newTestScanner(t, []domain.BotPosition{pos("0xa", 0)}, ctf)

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateError, report.Markets[0].State)
	assert.Contains(t, report.Markets[0].LastError, "execution failure")
	assert.True(t, s.pending())
	assert.Contains(t, alerts.msgs[0], "Redemption failed")
	reads := ctf.payoutRead

	ctf.redeemErr = nil
	report, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateRedemptionConfirmed, report.Markets[0].State)
	assert.Equal(t, reads, ctf.payoutRead, "payouts are not read again once resolved")
}

func TestScan_SettlementPollFailureIsError(t *testing.T) {
	ctf := &fakeCTF{payouts: map[string][]int64{"0xa": {1, 0}}, settleErr: fmt.Errorf("receipt: %w", domain.ErrTransient)}
	s, _, _ := newTestScanner(t, []domain.BotPosition{pos("0xa", 0)}, ctf)

	report, err := s.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.StateError, report.Markets[0].State)
	assert.Equal(t, "0xtx1", report.Markets[0].TxRef)
}

func TestScan_ReadFailureKeepsUnresolved(t *testing.T) {
	ctf := &fakeCTF{payoutErr: errors.New("rpc down")}
	s, _, _ := newTestScanner(t, []domain.BotPosition{pos("0xa", 0)}, ctf)

	report, err := s.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.StateUnresolved, report.Markets[0].State)
	assert.Contains(t, report.Markets[0].LastError, "rpc down")
	assert.False(t, s.pending())
}

func TestScan_HigherOutcomeIndexReadsMoreSlots(t *testing.T) {
	ctf := &fakeCTF{payouts: map[string][]int64{"0xa": {0, 0, 1}}}
	s, _, _ := newTestScanner(t, []domain.BotPosition{pos("0xa", 2)}, ctf)

	report, err := s.Scan(context.Background())

	require.NoError(t, err)
	assert.Len(t, report.Markets[0].Payouts, 3)
	require.Len(t, ctf.redeems, 1)
	assert.Equal(t, []domain.IndexSet{4}, ctf.redeems[0].sets)
}

func TestScan_PositionsFailure(t *testing.T) {
	s := NewScanner(&fakePositions{err: domain.ErrTransient}, &fakeCTF{}, nil, nil, Config{})

	_, err := s.Scan(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestScan_MarketsAreIsolated(t *testing.T) {
	ctf := &fakeCTF{payouts: map[string][]int64{"0xa": {0, 0}, "0xb": {1, 0}}}
	s, _, _ := newTestScanner(t, []domain.BotPosition{pos("0xb", 0), pos("0xa", 1)}, ctf)

	report, err := s.Scan(context.Background())

	require.NoError(t, err)
	require.Len(t, report.Markets, 2)
	assert.Equal(t, "0xa", report.Markets[0].ConditionID)
	assert.Equal(t, 1, report.Count(domain.StateUnresolved))
	assert.Equal(t, 1, report.Count(domain.StateRedemptionConfirmed))
}

func TestRun_TriggerStartsScan(t *testing.T) {
	ctf := &fakeCTF{payouts: map[string][]int64{"0xa": {0, 0}}}
	s, _, _ := newTestScanner(t, []domain.BotPosition{pos("0xa", 0)}, ctf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	readsAfter := func(n int) bool {
		ctf.mu.Lock()
		defer ctf.mu.Unlock()
		return ctf.payoutRead >= n
	}
	require.Eventually(t, func() bool { return readsAfter(2) }, time.Second, 5*time.Millisecond, "startup scan")

	s.Trigger()
	require.Eventually(t, func() bool { return readsAfter(4) }, time.Second, 5*time.Millisecond, "triggered scan")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_RetriesPendingMarkets(t *testing.T) {
	ctf := &fakeCTF{payouts: map[string][]int64{"0xa": {1, 0}}, settle: []bool{false}}
	s, _, _ := newTestScanner(t, []domain.BotPosition{pos("0xa", 0)}, ctf)
	s.cfg.RetryInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		r, ok := s.State("0xa")
		return ok && r.State == domain.StateRedemptionConfirmed
	}, 2*time.Second, 10*time.Millisecond)
}
