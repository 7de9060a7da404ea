package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/config"
	"github.com/alejandrodnm/polycopy/internal/adapters/onchain"
	"github.com/alejandrodnm/polycopy/internal/adapters/polymarket"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

// liveStack agrupa los clientes que firman con la private key.
type liveStack struct {
	ctf     *onchain.CTFClient
	trading *polymarket.TradingClient
}

func (l *liveStack) Close() {
	if l.trading != nil {
		l.trading.Close()
	}
	if l.ctf != nil {
		l.ctf.Close()
	}
}

// setupLive crea el cliente on-chain y, si trading es true, autentica contra
// el CLOB y verifica approvals y balance. Devuelve nil, nil si el usuario
// aborta durante la cuenta atrás.
func setupLive(ctx context.Context, cfg *config.Config, client *polymarket.Client, trading bool) (*liveStack, error) {
	ctf, err := onchain.NewCTFClient(cfg.Chain.RPCURL, cfg.Chain.PrivateKey, onchain.CTFOptions{})
	if err != nil {
		return nil, fmt.Errorf("ctf client: %w", err)
	}
	stack := &liveStack{ctf: ctf}
	if !trading {
		return stack, nil
	}

	fmt.Printf("\n⚠️  LIVE TRADING MODE: REAL MONEY WILL BE SPENT\n")
	fmt.Printf("   Bet mode: %s | Amount: $%.2f | Percentage: %.1f%% | Slippage: %.1f%%\n",
		cfg.Trading.BetMode, cfg.Trading.BetAmountUSDC, cfg.Trading.BetPercentage*100, cfg.Trading.SlippageTolerance*100)
	fmt.Printf("   Press Ctrl+C within 5 seconds to abort...\n\n")

	abortTimer := time.NewTimer(5 * time.Second)
	defer abortTimer.Stop()
	select {
	case <-abortTimer.C:
	case <-ctx.Done():
		slog.Info("live trading aborted by user")
		stack.Close()
		return nil, nil
	}

	auth, err := polymarket.NewAuthClient(client, cfg.Chain.PrivateKey)
	if err != nil {
		stack.Close()
		return nil, fmt.Errorf("auth client: %w", err)
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		stack.Close()
		return nil, fmt.Errorf("derive API credentials (check PRIVATE_KEY): %w", err)
	}
	slog.Info("live: authenticated with Polymarket CLOB", "address", auth.Address())

	stack.trading, err = polymarket.NewTradingClient(auth, cfg.Chain.RPCURL)
	if err != nil {
		stack.Close()
		return nil, fmt.Errorf("trading client: %w", err)
	}

	slog.Info("live: checking on-chain approvals...")
	if err := ctf.EnsureApprovals(ctx); err != nil {
		stack.Close()
		return nil, fmt.Errorf("ensure approvals: %w", err)
	}
	slog.Info("live: all approvals verified")

	balance, err := stack.trading.Balance(ctx)
	if err != nil {
		stack.Close()
		return nil, fmt.Errorf("balance: %w", err)
	}
	slog.Info("live: USDC.e balance", "usdc", fmt.Sprintf("$%.2f", balance))
	if balance < cfg.Trading.BetAmountUSDC && cfg.Trading.BetMode == string(domain.SizingFixed) {
		slog.Warn("live: balance below bet amount, orders will be rejected",
			"balance", fmt.Sprintf("$%.2f", balance),
			"bet", fmt.Sprintf("$%.2f", cfg.Trading.BetAmountUSDC))
	}
	return stack, nil
}
