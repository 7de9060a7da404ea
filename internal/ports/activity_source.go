package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// ActivitySource obtiene el feed de actividad reciente de una wallet.
type ActivitySource interface {
	// FetchActivity devuelve las últimas limit entradas de la wallet, de la más
	// reciente a la más antigua. Un 429 se devuelve envuelto en domain.ErrRateLimited.
	FetchActivity(ctx context.Context, wallet string, limit int) ([]domain.Activity, error)
}

// PositionReader lista las posiciones abiertas de la wallet del bot.
type PositionReader interface {
	FetchPositions(ctx context.Context) ([]domain.BotPosition, error)
}
