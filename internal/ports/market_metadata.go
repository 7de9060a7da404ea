package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// MarketMetadata resuelve los token ids de los outcomes de un mercado.
type MarketMetadata interface {
	// FetchInstruments devuelve domain.ErrNotFound si el mercado no existe.
	FetchInstruments(ctx context.Context, conditionID string) (domain.InstrumentPair, error)
}
