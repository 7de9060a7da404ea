package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side es el lado de una operación en el feed de actividad.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normaliza el lado recibido del feed. Valores desconocidos se
// conservan en mayúsculas para poder informarlos sin replicarlos.
func ParseSide(s string) Side {
	return Side(strings.ToUpper(strings.TrimSpace(s)))
}

// Mirrorable devuelve true solo para BUY y SELL.
func (s Side) Mirrorable() bool {
	return s == SideBuy || s == SideSell
}

// ActivityType clasifica las entradas del feed (TRADE, SPLIT, MERGE, REDEEM, ...).
type ActivityType string

const ActivityTrade ActivityType = "TRADE"

// Activity es una entrada normalizada del feed de actividad de una wallet.
type Activity struct {
	Wallet       string // lowercase, tal como se consulta al feed
	ConditionID  string
	Asset        string // instrument id crudo del evento (puede faltar)
	Outcome      string
	OutcomeIndex int
	Side         Side
	Type         ActivityType
	Size         float64
	Price        float64
	Title        string
	TxHash       string
	Timestamp    time.Time
}

// IsTrade devuelve true si la entrada es una operación completada.
func (a Activity) IsTrade() bool {
	return a.Type == ActivityTrade
}

// RawActivity son los campos del feed antes de validar. Los punteros nil indican
// campos ausentes en el payload.
type RawActivity struct {
	Wallet       string
	ConditionID  string
	Asset        string
	Outcome      string
	OutcomeIndex *int
	Side         string
	Type         string
	Size         *float64
	Price        *float64
	Title        string
	TxHash       string
	Timestamp    *time.Time
}

// NormalizeActivity valida y completa una entrada cruda del feed.
//   - timestamp ausente → now
//   - size/price ausentes → 0
//   - title ausente → "Unknown Market"
//   - TRADE sin condition id → ErrDataIntegrityGap
func NormalizeActivity(raw RawActivity, now time.Time) (Activity, error) {
	a := Activity{
		Wallet:      strings.ToLower(strings.TrimSpace(raw.Wallet)),
		ConditionID: strings.TrimSpace(raw.ConditionID),
		Asset:       strings.TrimSpace(raw.Asset),
		Outcome:     strings.TrimSpace(raw.Outcome),
		Side:        ParseSide(raw.Side),
		Type:        ActivityType(strings.ToUpper(strings.TrimSpace(raw.Type))),
		Title:       raw.Title,
		TxHash:      raw.TxHash,
		Timestamp:   now.UTC(),
	}
	if a.Wallet == "" {
		return Activity{}, fmt.Errorf("%w: activity without wallet", ErrDataIntegrityGap)
	}
	if a.IsTrade() && a.ConditionID == "" {
		return Activity{}, fmt.Errorf("%w: trade %s without conditionId", ErrDataIntegrityGap, raw.TxHash)
	}
	if raw.OutcomeIndex != nil {
		a.OutcomeIndex = *raw.OutcomeIndex
	}
	if raw.Size != nil {
		a.Size = *raw.Size
	}
	if raw.Price != nil {
		a.Price = *raw.Price
	}
	if raw.Timestamp != nil && !raw.Timestamp.IsZero() {
		a.Timestamp = raw.Timestamp.UTC()
	}
	if a.Title == "" {
		a.Title = "Unknown Market"
	}
	return a, nil
}

// LogicalTradeKey identifica una orden lógica para el seen-set.
// Outcome queda vacío salvo que la política de dedup lo incluya.
type LogicalTradeKey struct {
	Wallet      string
	ConditionID string
	Side        Side
	Outcome     string
}

// DedupKey construye la clave de dedup de la actividad.
func (a Activity) DedupKey(includeOutcome bool) LogicalTradeKey {
	k := LogicalTradeKey{Wallet: a.Wallet, ConditionID: a.ConditionID, Side: a.Side}
	if includeOutcome {
		k.Outcome = strings.ToLower(a.Outcome)
	}
	return k
}

// TradeKey es la clave de agregación: siempre incluye el outcome.
type TradeKey struct {
	Wallet      string
	ConditionID string
	Side        Side
	Outcome     string
}

// TradeKey devuelve la clave de agregación de la actividad.
func (a Activity) TradeKey() TradeKey {
	return TradeKey{Wallet: a.Wallet, ConditionID: a.ConditionID, Side: a.Side, Outcome: a.Outcome}
}

// ShortAddr acorta una dirección para logs: 0x1234…abcd.
func ShortAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
