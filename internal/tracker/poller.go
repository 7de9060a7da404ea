// Package tracker turns the activity feeds of the watched wallets into
// aggregated trade records: poll, dedup, aggregate.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const (
	DefaultActivityLimit     = 10
	DefaultRateLimitCooldown = 2 * time.Second
)

// PollerConfig configures one polling pass over the watch-list.
type PollerConfig struct {
	Wallets           []string
	Limit             int           // entries requested per wallet
	Workers           int           // concurrent requests; 0 = one per wallet
	RateLimitCooldown time.Duration // pause inside the wallet's task after a 429
}

// Poller fetches the latest activity of every watched wallet concurrently.
type Poller struct {
	src ports.ActivitySource
	cfg PollerConfig
}

// NewPoller creates a poller. Zero values in cfg take the package defaults.
func NewPoller(src ports.ActivitySource, cfg PollerConfig) *Poller {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultActivityLimit
	}
	if cfg.RateLimitCooldown <= 0 {
		cfg.RateLimitCooldown = DefaultRateLimitCooldown
	}
	return &Poller{src: src, cfg: cfg}
}

// Poll runs one pass and returns once every wallet request has settled.
// Events are grouped by wallet in watch-list order, oldest first within a
// wallet. A failing wallet contributes no events and never blocks the others.
func (p *Poller) Poll(ctx context.Context) []domain.Activity {
	perWallet := make([][]domain.Activity, len(p.cfg.Wallets))

	var g errgroup.Group
	if p.cfg.Workers > 0 {
		g.SetLimit(p.cfg.Workers)
	}
	for i, wallet := range p.cfg.Wallets {
		g.Go(func() error {
			perWallet[i] = p.pollWallet(ctx, wallet)
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.Activity
	for _, events := range perWallet {
		out = append(out, events...)
	}
	return out
}

func (p *Poller) pollWallet(ctx context.Context, wallet string) []domain.Activity {
	events, err := p.src.FetchActivity(ctx, wallet, p.cfg.Limit)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRateLimited):
		slog.Warn("activity rate limited, cooling down",
			"wallet", domain.ShortAddr(wallet),
			"cooldown", p.cfg.RateLimitCooldown,
		)
		sleepCtx(ctx, p.cfg.RateLimitCooldown)
		return nil
	default:
		slog.Warn("activity fetch failed", "wallet", domain.ShortAddr(wallet), "err", err)
		return nil
	}

	// El feed llega del más reciente al más antiguo.
	slices.Reverse(events)
	return events
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
