package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const activityPath = "/activity"

// FetchActivity obtiene las últimas limit entradas del feed de la wallet,
// de la más reciente a la más antigua. Implementa ports.ActivitySource.
//
// Las entradas que no pasan la normalización (TRADE sin conditionId) se
// descartan con un warning; el resto del lote se devuelve igualmente.
func (c *Client) FetchActivity(ctx context.Context, wallet string, limit int) ([]domain.Activity, error) {
	q := url.Values{}
	q.Set("user", wallet)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sortBy", "TIMESTAMP")
	q.Set("sortDirection", "DESC")
	u := c.dataBase + activityPath + "?" + q.Encode()

	var resp []activityEntry
	if err := c.get(ctx, c.dataLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("data-api.FetchActivity %s: %w", domain.ShortAddr(wallet), err)
	}

	now := time.Now()
	out := make([]domain.Activity, 0, len(resp))
	for _, e := range resp {
		a, err := mapActivity(e, wallet, now)
		if err != nil {
			slog.Warn("activity entry rejected",
				"wallet", domain.ShortAddr(wallet),
				"tx", e.TransactionHash,
				"err", err,
			)
			continue
		}
		out = append(out, a)
	}

	slog.Debug("activity fetched",
		"wallet", domain.ShortAddr(wallet),
		"entries", len(resp),
		"valid", len(out),
	)
	return out, nil
}
