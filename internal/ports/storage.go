package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// TradeStore persiste wallets, mercados, trades agregados y órdenes propias.
type TradeStore interface {
	// UpsertWallet crea la wallet si no existe y acumula actividad:
	// trade_count += trades, volume += volumeUSDC, last_active = at.
	UpsertWallet(ctx context.Context, address string, trades int, volumeUSDC float64, at time.Time) error

	// UpsertMarket crea o actualiza título, último precio e instrument ids.
	// Los ids vacíos no sobreescriben valores conocidos.
	UpsertMarket(ctx context.Context, m domain.Market) error

	// GetMarket devuelve domain.ErrNotFound si el mercado no existe.
	GetMarket(ctx context.Context, conditionID string) (domain.Market, error)

	// FindRecentTrade busca el registro más reciente de la clave con
	// timestamp >= since. ok=false si no hay ninguno.
	FindRecentTrade(ctx context.Context, key domain.TradeKey, since time.Time) (trade domain.WalletTrade, ok bool, err error)

	// SaveTrade inserta el registro (ID == 0, asigna el ID) o lo actualiza.
	SaveTrade(ctx context.Context, t *domain.WalletTrade) error

	// SaveBotTrade registra una orden propia.
	SaveBotTrade(ctx context.Context, bt domain.BotTrade) error

	// MarkMarketResolved marca el mercado como resuelto.
	MarkMarketResolved(ctx context.Context, conditionID string) error

	Close() error
}
