package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const clobMarketsPath = "/markets/"

// FetchInstruments resuelve los token ids Yes/No de un mercado.
// Implementa ports.MarketMetadata.
//
// Consulta primero el CLOB; si el CLOB no conoce el mercado o no trae los dos
// tokens, completa con Gamma. Devuelve domain.ErrNotFound si ninguno lo conoce.
func (c *Client) FetchInstruments(ctx context.Context, conditionID string) (domain.InstrumentPair, error) {
	pair, err := c.fetchCLOBInstruments(ctx, conditionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.InstrumentPair{}, fmt.Errorf("clob.FetchInstruments: %w", err)
	}
	if pair.Yes != "" && pair.No != "" {
		return pair, nil
	}

	gammaPair, gammaErr := c.fetchGammaInstruments(ctx, conditionID)
	if gammaErr != nil {
		slog.Debug("gamma instrument lookup failed",
			"condition_id", conditionID,
			"err", gammaErr,
		)
	}
	pair = pair.Merge(gammaPair)

	if pair.Empty() {
		return domain.InstrumentPair{}, fmt.Errorf("clob.FetchInstruments %s: %w", conditionID, domain.ErrNotFound)
	}
	return pair, nil
}

// fetchCLOBMarket devuelve el mercado tal como lo expone el CLOB (incluye neg_risk).
func (c *Client) fetchCLOBMarket(ctx context.Context, conditionID string) (clobMarket, error) {
	var resp clobMarket
	u := c.clobBase + clobMarketsPath + url.PathEscape(conditionID)
	if err := c.get(ctx, c.clobLimiter, u, &resp); err != nil {
		return clobMarket{}, err
	}
	return resp, nil
}

func (c *Client) fetchCLOBInstruments(ctx context.Context, conditionID string) (domain.InstrumentPair, error) {
	m, err := c.fetchCLOBMarket(ctx, conditionID)
	if err != nil {
		return domain.InstrumentPair{}, err
	}
	return mapCLOBInstruments(m.Tokens), nil
}

// IsNegRisk indica si el mercado opera contra el NegRisk CTF Exchange.
func (c *Client) IsNegRisk(ctx context.Context, conditionID string) (bool, error) {
	m, err := c.fetchCLOBMarket(ctx, conditionID)
	if err != nil {
		return false, fmt.Errorf("clob.IsNegRisk: %w", err)
	}
	return m.NegRisk, nil
}
