package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// mapActivity convierte una entrada de /activity a domain.Activity.
// Si la entrada no trae proxyWallet se usa la wallet consultada.
func mapActivity(e activityEntry, wallet string, now time.Time) (domain.Activity, error) {
	raw := domain.RawActivity{
		Wallet:       e.ProxyWallet,
		ConditionID:  e.ConditionID,
		Asset:        e.Asset,
		Outcome:      e.Outcome,
		OutcomeIndex: intPtr(e.OutcomeIndex),
		Side:         e.Side,
		Type:         e.Type,
		Size:         floatPtr(e.Size),
		Price:        floatPtr(e.Price),
		Title:        e.Title,
		TxHash:       e.TransactionHash,
	}
	if raw.Wallet == "" {
		raw.Wallet = wallet
	}
	if ts := parseTimestamp(e.Timestamp); !ts.IsZero() {
		raw.Timestamp = &ts
	}
	return domain.NormalizeActivity(raw, now)
}

// mapPosition convierte una entrada de /positions a domain.BotPosition.
// Sin outcomeIndex el índice sale del label (Yes=0, No=1); si tampoco se
// reconoce el label la entrada se descarta.
func mapPosition(p positionEntry) (domain.BotPosition, bool) {
	pos := domain.BotPosition{
		ConditionID: p.ConditionID,
		Asset:       p.Asset,
		Outcome:     p.Outcome,
		Title:       p.Title,
	}
	if idx := intPtr(p.OutcomeIndex); idx != nil {
		pos.OutcomeIndex = *idx
	} else {
		switch domain.ParseOutcome(p.Outcome) {
		case domain.OutcomeYes:
			pos.OutcomeIndex = 0
		case domain.OutcomeNo:
			pos.OutcomeIndex = 1
		default:
			return domain.BotPosition{}, false
		}
	}
	if pos.OutcomeIndex < 0 {
		return domain.BotPosition{}, false
	}
	if size := floatPtr(p.Size); size != nil {
		pos.Size = *size
	}
	return pos, true
}

// mapCLOBInstruments empareja los tokens del CLOB con Yes/No sin distinguir
// mayúsculas. Los tokens con otros labels se ignoran.
func mapCLOBInstruments(tokens []clobToken) domain.InstrumentPair {
	var pair domain.InstrumentPair
	for _, t := range tokens {
		switch domain.ParseOutcome(t.Outcome) {
		case domain.OutcomeYes:
			pair.Yes = t.TokenID
		case domain.OutcomeNo:
			pair.No = t.TokenID
		}
	}
	return pair
}

// mapGammaInstruments decodifica outcomes y clobTokenIds (arrays serializados)
// y empareja por posición.
func mapGammaInstruments(gm gammaMarket) (domain.InstrumentPair, error) {
	var outcomes, tokenIDs []string
	if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err != nil {
		return domain.InstrumentPair{}, fmt.Errorf("decode outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.InstrumentPair{}, fmt.Errorf("decode clobTokenIds: %w", err)
	}

	tokens := make([]clobToken, 0, len(outcomes))
	for i, o := range outcomes {
		if i >= len(tokenIDs) {
			break
		}
		tokens = append(tokens, clobToken{TokenID: tokenIDs[i], Outcome: o})
	}
	return mapCLOBInstruments(tokens), nil
}

func floatPtr(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return &f
}

func intPtr(n json.Number) *int {
	if n == "" {
		return nil
	}
	i, err := strconv.Atoi(n.String())
	if err != nil {
		return nil
	}
	return &i
}

// parseTimestamp acepta unix segundos, milisegundos, float o ISO 8601.
// Devuelve time.Time{} si no se puede parsear.
func parseTimestamp(n json.Number) time.Time {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return time.Time{}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
