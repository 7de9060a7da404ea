package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polycopy/config"
	"github.com/alejandrodnm/polycopy/internal/adapters/notify"
	"github.com/alejandrodnm/polycopy/internal/adapters/paper"
	"github.com/alejandrodnm/polycopy/internal/adapters/polymarket"
	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/copier"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/engine"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"github.com/alejandrodnm/polycopy/internal/redeemer"
	"github.com/alejandrodnm/polycopy/internal/tracker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "warm up, run one detection tick and exit")
	redeemOnly := flag.Bool("redeem", false, "run one redemption scan, print the report and exit")
	forcePaper := flag.Bool("paper", false, "force paper trading regardless of config")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	if *forcePaper {
		os.Setenv("TRADING_MODE", config.ModePaper)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("polycopy starting",
		"config", *configPath,
		"settings", cfg,
		"once", *once,
		"redeem_only", *redeemOnly,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN, cfg.Retention())
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	client := polymarket.NewClient(polymarket.Options{
		CLOBBase:   cfg.API.CLOBBase,
		GammaBase:  cfg.API.GammaBase,
		DataBase:   cfg.API.DataBase,
		MaxRetries: cfg.API.MaxRetries,
		Timeout:    cfg.APITimeout(),
	})

	console := notify.NewConsole()
	var alerter ports.Alerter = console
	if tg := notify.NewTelegram("", cfg.Telegram.BotToken, cfg.Telegram.ChatID); tg.Enabled() {
		alerter = notify.Multi{console, tg}
		slog.Info("telegram alerts enabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var live *liveStack
	if cfg.Trading.Mode == config.ModeLive || cfg.RedeemEnabled() {
		live, err = setupLive(ctx, cfg, client, cfg.Trading.Mode == config.ModeLive && !*redeemOnly)
		if err != nil {
			slog.Error("live setup failed", "err", err)
			os.Exit(1)
		}
		if live == nil {
			return // abortado durante la cuenta atrás
		}
		defer live.Close()
	}

	var scanner *redeemer.Scanner
	if cfg.RedeemEnabled() {
		scanner = redeemer.NewScanner(
			polymarket.NewPositionReader(client, cfg.Chain.MyWalletAddress),
			live.ctf,
			store,
			alerter,
			redeemer.Config{RetryInterval: cfg.RedeemRetryInterval(), Interval: cfg.RedeemInterval()},
		)
	} else {
		slog.Warn("redemption disabled: no private key configured")
	}

	if *redeemOnly {
		if scanner == nil {
			os.Exit(1)
		}
		report, err := scanner.Scan(ctx)
		if err != nil {
			slog.Error("redemption scan failed", "err", err)
			os.Exit(1)
		}
		console.PrintScanReport(report)
		return
	}

	var exec ports.OrderExecutor
	if cfg.Trading.Mode == config.ModeLive {
		exec = live.trading
	} else {
		exec = paper.NewExecutor(cfg.Trading.PaperBalanceUSDC)
	}

	c := copier.NewCopier(
		copier.NewResolver(store, client),
		copier.NewMapper(copier.SizingConfig{
			Mode:       domain.SizingMode(cfg.Trading.BetMode),
			FixedUSDC:  cfg.Trading.BetAmountUSDC,
			Percentage: cfg.Trading.BetPercentage,
			Slippage:   cfg.Trading.SlippageTolerance,
		}, exec),
		exec, store, alerter, cfg.Trading.Mode,
	)

	eng := engine.New(
		engine.Config{Interval: cfg.PollInterval(), Workers: cfg.Engine.Workers},
		tracker.NewPoller(client, tracker.PollerConfig{
			Wallets:           cfg.Wallets,
			Limit:             cfg.Poller.ActivityLimit,
			Workers:           cfg.Poller.Workers,
			RateLimitCooldown: cfg.RateLimitCooldown(),
		}),
		tracker.NewDeduplicator(tracker.DedupOptions{
			IncludeOutcome: cfg.Dedup.IncludeOutcome,
			SeenTTL:        cfg.SeenTTL(),
		}),
		tracker.NewAggregator(store, cfg.AggregationWindow()),
		c,
	)

	if *once {
		runOnce(ctx, eng, store, console, cfg.PollInterval())
		return
	}

	if scanner != nil {
		go func() {
			if err := scanner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("redemption scanner exited", "err", err)
			}
		}()
		go triggerOnSignal(ctx, scanner)
	}

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polycopy stopped cleanly")
}

// runOnce hace el warm-up del dedup, espera un intervalo y ejecuta un tick
// de detección. Imprime las últimas órdenes propias al terminar.
func runOnce(ctx context.Context, eng *engine.Engine, store *storage.SQLiteStorage, console *notify.Console, interval time.Duration) {
	eng.RunOnce(ctx)

	select {
	case <-ctx.Done():
		return
	case <-time.After(interval):
	}

	trades := eng.RunOnce(ctx)
	slog.Info("detection tick complete", "trades", len(trades))

	recent, err := store.RecentBotTrades(ctx, 20)
	if err != nil {
		slog.Warn("failed to read bot trades", "err", err)
		return
	}
	console.PrintBotTrades(recent)
}

// triggerOnSignal lanza un scan de redenciones con SIGUSR1.
func triggerOnSignal(ctx context.Context, scanner *redeemer.Scanner) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			slog.Info("redemption scan requested")
			scanner.Trigger()
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
