package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const positionsPath = "/positions"

// FetchPositions devuelve las posiciones abiertas de la wallet dada.
func (c *Client) FetchPositions(ctx context.Context, wallet string) ([]domain.BotPosition, error) {
	q := url.Values{}
	q.Set("user", wallet)
	u := c.dataBase + positionsPath + "?" + q.Encode()

	var resp []positionEntry
	if err := c.get(ctx, c.dataLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("data-api.FetchPositions %s: %w", domain.ShortAddr(wallet), err)
	}

	positions := make([]domain.BotPosition, 0, len(resp))
	for _, p := range resp {
		if p.ConditionID == "" {
			continue
		}
		pos, ok := mapPosition(p)
		if !ok {
			slog.Warn("data-api: position without outcome index, skipped",
				"condition_id", p.ConditionID, "outcome", p.Outcome)
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// PositionReader fija la wallet del bot para implementar ports.PositionReader.
type PositionReader struct {
	client *Client
	wallet string
}

// NewPositionReader crea un PositionReader para la wallet dada.
func NewPositionReader(client *Client, wallet string) *PositionReader {
	return &PositionReader{client: client, wallet: wallet}
}

// FetchPositions devuelve las posiciones de la wallet del bot.
func (r *PositionReader) FetchPositions(ctx context.Context) ([]domain.BotPosition, error) {
	return r.client.FetchPositions(ctx, r.wallet)
}
