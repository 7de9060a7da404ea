// Package redeemer tracks held positions until their markets resolve and
// claims the winnings through the conditional tokens contract.
//
// Per market:
//
//	UNRESOLVED -> RESOLVED -> REDEMPTION_SUBMITTED -> REDEMPTION_CONFIRMED
//
// A failed dispatch or settlement poll moves the market to ERROR, which is
// retried from RESOLVED on the next scan. A reverted settlement goes back to
// RESOLVED.
package redeemer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const DefaultRetryInterval = 5 * time.Minute

// binarySlots is the number of payout slots read when no held position
// points at a higher outcome index.
const binarySlots = 2

// Config controls when scans run besides startup and Trigger.
type Config struct {
	RetryInterval time.Duration // while any market is RESOLVED or ERROR
	Interval      time.Duration // periodic scans; 0 = off
}

// Scanner runs redemption scans. Scans are serialized; state lives in memory
// and is rebuilt from the chain after a restart.
type Scanner struct {
	positions ports.PositionReader
	ctf       ports.ConditionalTokens
	store     ports.TradeStore
	alert     ports.Alerter
	cfg       Config

	mu      sync.Mutex
	states  map[string]*domain.Resolution
	trigger chan struct{}
	now     func() time.Time
}

func NewScanner(positions ports.PositionReader, ctf ports.ConditionalTokens, store ports.TradeStore, alert ports.Alerter, cfg Config) *Scanner {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return &Scanner{
		positions: positions,
		ctf:       ctf,
		store:     store,
		alert:     alert,
		cfg:       cfg,
		states:    make(map[string]*domain.Resolution),
		trigger:   make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Trigger requests a scan from Run. Calls while one is pending are coalesced.
func (s *Scanner) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run scans at startup and then on Trigger, on the retry interval while a
// market awaits redemption, and on the periodic interval if configured.
// It returns when ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	var periodic <-chan time.Time
	if s.cfg.Interval > 0 {
		t := time.NewTicker(s.cfg.Interval)
		defer t.Stop()
		periodic = t.C
	}

	for {
		if _, err := s.Scan(ctx); err != nil {
			slog.Warn("redeemer: scan failed", "err", err)
		}

		var retry <-chan time.Time
		if s.pending() {
			retry = time.After(s.cfg.RetryInterval)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.trigger:
		case <-retry:
		case <-periodic:
		}
	}
}

// Scan runs one pass over the held positions. It only fails when the
// positions cannot be listed; per-market failures are recorded in the report.
func (s *Scanner) Scan(ctx context.Context) (domain.ScanReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := domain.ScanReport{StartedAt: s.now()}
	positions, err := s.positions.FetchPositions(ctx)
	if err != nil {
		return report, fmt.Errorf("redeemer.Scan: positions: %w", err)
	}
	report.Positions = len(positions)

	byMarket := make(map[string][]domain.BotPosition)
	for _, p := range positions {
		if p.ConditionID == "" || p.Size <= 0 {
			continue
		}
		byMarket[p.ConditionID] = append(byMarket[p.ConditionID], p)
	}
	cids := make([]string, 0, len(byMarket))
	for cid := range byMarket {
		cids = append(cids, cid)
	}
	sort.Strings(cids)

	for _, cid := range cids {
		if ctx.Err() != nil {
			break
		}
		res := s.stateFor(cid, byMarket[cid])
		if !res.State.Terminal() {
			s.advance(ctx, res, byMarket[cid])
		}
		report.Markets = append(report.Markets, cloneResolution(*res))
	}

	report.Duration = s.now().Sub(report.StartedAt)
	slog.Info("redemption scan complete",
		"positions", report.Positions,
		"markets", len(report.Markets),
		"resolved", report.Count(domain.StateResolved),
		"confirmed", report.Count(domain.StateRedemptionConfirmed),
		"errors", report.Count(domain.StateError),
		"duration", report.Duration,
	)
	return report, nil
}

// State returns a copy of the tracked state of a market.
func (s *Scanner) State(conditionID string) (domain.Resolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.states[conditionID]
	if !ok {
		return domain.Resolution{}, false
	}
	return cloneResolution(*r), true
}

func (s *Scanner) stateFor(cid string, held []domain.BotPosition) *domain.Resolution {
	res, ok := s.states[cid]
	if !ok {
		res = &domain.Resolution{ConditionID: cid, State: domain.StateUnresolved}
		s.states[cid] = res
	}
	if res.Title == "" {
		res.Title = held[0].Title
	}
	return res
}

// advance moves one market as far as it can go in this scan.
func (s *Scanner) advance(ctx context.Context, res *domain.Resolution, held []domain.BotPosition) {
	log := slog.With("condition_id", res.ConditionID)

	if res.State == domain.StateUnresolved {
		payouts, err := s.readPayouts(ctx, res.ConditionID, held)
		if err != nil {
			log.Warn("redeemer: payout read failed", "err", err)
			res.LastError = err.Error()
			res.UpdatedAt = s.now()
			return
		}
		res.Payouts = payouts
		res.LastError = ""
		if !domain.IsResolvedPayout(payouts) {
			res.UpdatedAt = s.now()
			return
		}
		s.transition(res, domain.StateResolved)
		if err := s.store.MarkMarketResolved(ctx, res.ConditionID); err != nil {
			log.Warn("redeemer: mark market resolved failed", "err", err)
		}
	}

	// ERROR is retried from RESOLVED.
	if res.State == domain.StateError {
		s.transition(res, domain.StateResolved)
	}

	res.IndexSets = domain.BuildIndexSets(held)
	txRef, err := s.ctf.RedeemPositions(ctx, res.ConditionID, res.IndexSets)
	if err != nil {
		s.fail(ctx, res, fmt.Errorf("redeem: %w", err))
		return
	}
	res.TxRef = txRef
	s.transition(res, domain.StateRedemptionSubmitted)
	log.Info("redemption submitted", "tx", txRef, "index_sets", res.IndexSets)

	ok, err := s.ctf.WaitSettlement(ctx, txRef)
	if err != nil {
		s.fail(ctx, res, fmt.Errorf("settlement %s: %w", txRef, err))
		return
	}
	if !ok {
		res.LastError = "transaction reverted"
		s.transition(res, domain.StateResolved)
		log.Warn("redemption reverted", "tx", txRef)
		s.send(ctx, fmt.Sprintf("⚠️ *Redemption reverted*\n%s\ntx `%s`", s.title(res), txRef))
		return
	}

	res.LastError = ""
	s.transition(res, domain.StateRedemptionConfirmed)
	log.Info("redemption confirmed", "tx", txRef)
	s.send(ctx, fmt.Sprintf("💰 *Redeemed*\n%s\nindex sets %v, tx `%s`", s.title(res), res.IndexSets, txRef))
}

// readPayouts reads payoutNumerators for the binary slots, or more if a
// held position sits at a higher outcome index.
func (s *Scanner) readPayouts(ctx context.Context, cid string, held []domain.BotPosition) ([]*big.Int, error) {
	slots := binarySlots
	for _, p := range held {
		if p.OutcomeIndex+1 > slots {
			slots = p.OutcomeIndex + 1
		}
	}
	payouts := make([]*big.Int, slots)
	for i := range payouts {
		n, err := s.ctf.PayoutNumerator(ctx, cid, i)
		if err != nil {
			return nil, fmt.Errorf("payout slot %d: %w", i, err)
		}
		payouts[i] = n
	}
	return payouts, nil
}

func (s *Scanner) fail(ctx context.Context, res *domain.Resolution, err error) {
	res.LastError = err.Error()
	s.transition(res, domain.StateError)
	slog.Warn("redemption failed", "condition_id", res.ConditionID, "err", err)
	s.send(ctx, fmt.Sprintf("❌ *Redemption failed*\n%s\n`%s`", s.title(res), err))
}

func (s *Scanner) transition(res *domain.Resolution, to domain.ResolutionState) {
	slog.Debug("resolution transition", "condition_id", res.ConditionID, "from", res.State, "to", to)
	res.State = to
	res.UpdatedAt = s.now()
}

func (s *Scanner) pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.states {
		if r.State == domain.StateResolved || r.State == domain.StateError {
			return true
		}
	}
	return false
}

func (s *Scanner) send(ctx context.Context, msg string) {
	if s.alert == nil {
		return
	}
	if err := s.alert.Alert(ctx, msg); err != nil {
		slog.Warn("redeemer: alert failed", "err", err)
	}
}

func (s *Scanner) title(res *domain.Resolution) string {
	return domain.TruncateTitle(res.Title, res.ConditionID, 60)
}

func cloneResolution(r domain.Resolution) domain.Resolution {
	r.Payouts = append([]*big.Int(nil), r.Payouts...)
	r.IndexSets = append([]domain.IndexSet(nil), r.IndexSets...)
	return r
}
