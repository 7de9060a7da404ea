package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const gammaMarketsPath = "/markets"

// fetchGammaInstruments busca el mercado en Gamma por condition id y decodifica
// sus token ids. Gamma indexa mercados que el CLOB a veces ya no sirve.
func (c *Client) fetchGammaInstruments(ctx context.Context, conditionID string) (domain.InstrumentPair, error) {
	q := url.Values{}
	q.Set("condition_ids", conditionID)
	q.Set("limit", "1")
	u := c.gammaBase + gammaMarketsPath + "?" + q.Encode()

	var resp gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, u, &resp); err != nil {
		return domain.InstrumentPair{}, fmt.Errorf("gamma.fetchInstruments: %w", err)
	}

	for _, gm := range resp {
		if !strings.EqualFold(gm.ConditionID, conditionID) {
			continue
		}
		pair, err := mapGammaInstruments(gm)
		if err != nil {
			return domain.InstrumentPair{}, fmt.Errorf("gamma.fetchInstruments %s: %w", conditionID, err)
		}
		return pair, nil
	}
	return domain.InstrumentPair{}, fmt.Errorf("gamma.fetchInstruments %s: %w", conditionID, domain.ErrNotFound)
}
