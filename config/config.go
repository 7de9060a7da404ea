package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Modos de ejecución de órdenes.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Config es la configuración completa del bot.
type Config struct {
	Wallets    []string         `yaml:"wallets" validate:"required,min=1,dive,eth_addr"`
	Trading    TradingConfig    `yaml:"trading"`
	Chain      ChainConfig      `yaml:"chain"`
	Poller     PollerConfig     `yaml:"poller"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Engine     EngineConfig     `yaml:"engine"`
	Redeem     RedeemConfig     `yaml:"redeem"`
	API        APIConfig        `yaml:"api"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// TradingConfig controla cómo se dimensionan y ejecutan las copias.
type TradingConfig struct {
	Mode              string  `yaml:"mode" validate:"oneof=paper live"`
	BetMode           string  `yaml:"bet_mode" validate:"oneof=FIXED PERCENTAGE"`
	BetAmountUSDC     float64 `yaml:"bet_amount_usdc" validate:"gt=0"`
	BetPercentage     float64 `yaml:"bet_percentage" validate:"gt=0,lte=1"`
	SlippageTolerance float64 `yaml:"slippage_tolerance" validate:"gte=0,lt=1"`
	PaperBalanceUSDC  float64 `yaml:"paper_balance_usdc" validate:"gte=0"`
}

// ChainConfig contiene la wallet del bot y el nodo de Polygon.
type ChainConfig struct {
	PrivateKey      string `yaml:"private_key" validate:"omitempty,hexadecimal"`
	MyWalletAddress string `yaml:"my_wallet_address" validate:"omitempty,eth_addr"`
	RPCURL          string `yaml:"rpc_url" validate:"required,url"`
}

// PollerConfig controla el polling del feed de actividad.
type PollerConfig struct {
	IntervalSeconds     int `yaml:"interval_seconds" validate:"gt=0"`
	ActivityLimit       int `yaml:"activity_limit" validate:"gt=0,lte=500"`
	Workers             int `yaml:"workers" validate:"gte=0"` // 0 = una goroutine por wallet
	RateLimitCooldownMS int `yaml:"rate_limit_cooldown_ms" validate:"gt=0"`
}

// DedupConfig controla la política del seen-set.
type DedupConfig struct {
	IncludeOutcome bool `yaml:"include_outcome"`
	SeenTTLMinutes int  `yaml:"seen_ttl_minutes" validate:"gte=0"` // 0 = sin expiración
}

type AggregatorConfig struct {
	WindowSeconds int `yaml:"window_seconds" validate:"gt=0"`
}

type EngineConfig struct {
	Workers int `yaml:"workers" validate:"gte=0"` // 0 = sin límite
}

// RedeemConfig controla el scanner de redenciones.
type RedeemConfig struct {
	Enabled              *bool `yaml:"enabled"` // nil = activo si hay private key
	RetryIntervalMinutes int   `yaml:"retry_interval_minutes" validate:"gt=0"`
	IntervalMinutes      int   `yaml:"interval_minutes" validate:"gte=0"` // 0 = solo al arrancar y bajo demanda
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase       string `yaml:"clob_base" validate:"required,url"`
	GammaBase      string `yaml:"gamma_base" validate:"required,url"`
	DataBase       string `yaml:"data_base" validate:"required,url"`
	MaxRetries     int    `yaml:"max_retries" validate:"gte=0,lte=10"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gt=0"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN           string `yaml:"dsn" validate:"required"` // ruta al archivo SQLite, o ":memory:"
	RetentionDays int    `yaml:"retention_days" validate:"gte=0"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

const defaultSlippage = 0.01

// Load carga .env (si existe), el YAML (si existe), aplica overrides de
// entorno y defaults, y valida. Cualquier fallo envuelve domain.ErrFatalConfig.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	// La slippage se siembra antes de leer YAML y env: 0 es un valor válido.
	cfg := Config{Trading: TradingConfig{SlippageTolerance: defaultSlippage}}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config file not found, using env and defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("config.Load: read %q: %w: %w", path, err, domain.ErrFatalConfig)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w: %w", err, domain.ErrFatalConfig)
			}
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate comprueba la configuración y normaliza las direcciones a EIP-55.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config.Validate: %w: %w", err, domain.ErrFatalConfig)
	}
	if c.Trading.Mode == ModeLive {
		if c.Chain.PrivateKey == "" {
			return fmt.Errorf("config.Validate: PRIVATE_KEY is required in live mode: %w", domain.ErrFatalConfig)
		}
		if c.Chain.MyWalletAddress == "" {
			return fmt.Errorf("config.Validate: MY_WALLET_ADDRESS is required in live mode: %w", domain.ErrFatalConfig)
		}
	}
	if c.Chain.PrivateKey != "" && len(strings.TrimPrefix(c.Chain.PrivateKey, "0x")) != 64 {
		return fmt.Errorf("config.Validate: private key must be 32 bytes hex: %w", domain.ErrFatalConfig)
	}
	if c.RedeemEnabled() && c.Chain.MyWalletAddress == "" {
		return fmt.Errorf("config.Validate: MY_WALLET_ADDRESS is required for redemption: %w", domain.ErrFatalConfig)
	}

	seen := make(map[string]bool, len(c.Wallets))
	wallets := c.Wallets[:0]
	for _, w := range c.Wallets {
		addr := common.HexToAddress(w).Hex()
		if seen[addr] {
			continue
		}
		seen[addr] = true
		wallets = append(wallets, addr)
	}
	c.Wallets = wallets
	if c.Chain.MyWalletAddress != "" {
		c.Chain.MyWalletAddress = common.HexToAddress(c.Chain.MyWalletAddress).Hex()
	}
	return nil
}

// RedeemEnabled indica si el scanner de redenciones debe arrancar. Sin
// private key nunca está activo.
func (c *Config) RedeemEnabled() bool {
	if c.Chain.PrivateKey == "" {
		return false
	}
	return c.Redeem.Enabled == nil || *c.Redeem.Enabled
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalSeconds) * time.Second
}

func (c *Config) RateLimitCooldown() time.Duration {
	return time.Duration(c.Poller.RateLimitCooldownMS) * time.Millisecond
}

func (c *Config) AggregationWindow() time.Duration {
	return time.Duration(c.Aggregator.WindowSeconds) * time.Second
}

func (c *Config) SeenTTL() time.Duration {
	return time.Duration(c.Dedup.SeenTTLMinutes) * time.Minute
}

func (c *Config) RedeemRetryInterval() time.Duration {
	return time.Duration(c.Redeem.RetryIntervalMinutes) * time.Minute
}

func (c *Config) RedeemInterval() time.Duration {
	return time.Duration(c.Redeem.IntervalMinutes) * time.Minute
}

func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}

// LogValue implementa slog.LogValuer sin exponer secretos.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("wallets", len(c.Wallets)),
		slog.String("mode", c.Trading.Mode),
		slog.String("bet_mode", c.Trading.BetMode),
		slog.Float64("bet_amount_usdc", c.Trading.BetAmountUSDC),
		slog.Float64("bet_percentage", c.Trading.BetPercentage),
		slog.Float64("slippage", c.Trading.SlippageTolerance),
		slog.String("my_wallet", c.Chain.MyWalletAddress),
		slog.String("private_key", mask(c.Chain.PrivateKey)),
		slog.String("telegram_token", mask(c.Telegram.BotToken)),
		slog.Bool("redeem", c.RedeemEnabled()),
		slog.String("db", c.Storage.DSN),
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("TARGET_WALLETS"); v != "" {
		cfg.Wallets = nil
		for _, w := range strings.Split(v, ",") {
			if w = strings.TrimSpace(w); w != "" {
				cfg.Wallets = append(cfg.Wallets, w)
			}
		}
	}
	setString(&cfg.Chain.PrivateKey, "PRIVATE_KEY")
	setString(&cfg.Chain.MyWalletAddress, "MY_WALLET_ADDRESS")
	setString(&cfg.Chain.RPCURL, "POLYGON_RPC_URL")
	setString(&cfg.Trading.Mode, "TRADING_MODE")
	setString(&cfg.Trading.BetMode, "BET_MODE")
	setString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&cfg.Storage.DSN, "DB_DSN")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	for key, dst := range map[string]*float64{
		"BET_AMOUNT_USDC":    &cfg.Trading.BetAmountUSDC,
		"BET_PERCENTAGE":     &cfg.Trading.BetPercentage,
		"SLIPPAGE_TOLERANCE": &cfg.Trading.SlippageTolerance,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("config.Load: %s=%q: %w", key, v, domain.ErrFatalConfig)
		}
		*dst = f
	}

	cfg.Trading.Mode = strings.ToLower(strings.TrimSpace(cfg.Trading.Mode))
	cfg.Trading.BetMode = strings.ToUpper(strings.TrimSpace(cfg.Trading.BetMode))
	cfg.Chain.PrivateKey = strings.TrimSpace(cfg.Chain.PrivateKey)
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = ModePaper
	}
	if cfg.Trading.BetMode == "" {
		cfg.Trading.BetMode = string(domain.SizingFixed)
	}
	if cfg.Trading.BetAmountUSDC == 0 {
		cfg.Trading.BetAmountUSDC = 10
	}
	if cfg.Trading.BetPercentage == 0 {
		cfg.Trading.BetPercentage = 0.05
	}
	if cfg.Chain.RPCURL == "" {
		cfg.Chain.RPCURL = "https://polygon-rpc.com"
	}
	if cfg.Poller.IntervalSeconds == 0 {
		cfg.Poller.IntervalSeconds = 3
	}
	if cfg.Poller.ActivityLimit == 0 {
		cfg.Poller.ActivityLimit = 10
	}
	if cfg.Poller.RateLimitCooldownMS == 0 {
		cfg.Poller.RateLimitCooldownMS = 2000
	}
	if cfg.Aggregator.WindowSeconds == 0 {
		cfg.Aggregator.WindowSeconds = 60
	}
	if cfg.Redeem.RetryIntervalMinutes == 0 {
		cfg.Redeem.RetryIntervalMinutes = 5
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = 10
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polycopy.db"
	}
	if cfg.Storage.RetentionDays == 0 {
		cfg.Storage.RetentionDays = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
