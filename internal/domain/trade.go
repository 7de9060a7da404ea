package domain

import "time"

// WalletTrade es el registro estable de una orden lógica de una wallet vigilada.
// Mientras lleguen fills dentro de la ventana de agregación se fusionan aquí;
// pasado ese tiempo se abre un registro nuevo.
type WalletTrade struct {
	ID          int64 // 0 = todavía no persistido
	Wallet      string
	ConditionID string
	Outcome     string
	Side        Side
	Price       float64 // precio medio ponderado por volumen
	Size        float64 // tamaño acumulado, siempre >= 0
	Timestamp   time.Time
}

// Key devuelve la clave de agregación del registro.
func (t WalletTrade) Key() TradeKey {
	return TradeKey{Wallet: t.Wallet, ConditionID: t.ConditionID, Side: t.Side, Outcome: t.Outcome}
}

// NewWalletTrade crea el registro inicial a partir del primer fill.
func NewWalletTrade(fill Activity) WalletTrade {
	return WalletTrade{
		Wallet:      fill.Wallet,
		ConditionID: fill.ConditionID,
		Outcome:     fill.Outcome,
		Side:        fill.Side,
		Price:       fill.Price,
		Size:        fill.Size,
		Timestamp:   fill.Timestamp,
	}
}

// MergeFill fusiona un fill en el registro con precio medio ponderado:
//
//	price = (oldPrice*oldSize + fillPrice*fillSize) / (oldSize + fillSize)
//
// Si el tamaño resultante es 0 se usa el precio del fill. El timestamp queda
// en el fill más reciente aunque los fills lleguen desordenados. No muta old.
// Fusionar el mismo fill dos veces duplica el tamaño: el dedup garantiza
// que cada fill llega una sola vez.
func MergeFill(old WalletTrade, fill Activity) WalletTrade {
	merged := old
	newSize := old.Size + fill.Size
	if newSize == 0 {
		merged.Price = fill.Price
	} else {
		merged.Price = (old.Price*old.Size + fill.Price*fill.Size) / newSize
	}
	merged.Size = newSize
	if fill.Timestamp.After(old.Timestamp) {
		merged.Timestamp = fill.Timestamp
	}
	return merged
}

// WithinWindow indica si el fill cae dentro de la ventana del registro.
// El borde es inclusivo: un fill exactamente window después todavía se fusiona.
func (t WalletTrade) WithinWindow(at time.Time, window time.Duration) bool {
	return at.Sub(t.Timestamp) <= window
}

// AggregatedTrade es la salida del agregador: el registro tras el merge y la
// actividad que lo produjo (necesaria para el fallback de instrument id).
type AggregatedTrade struct {
	Trade  WalletTrade
	Source Activity
	Merged bool
}

// Wallet es una wallet vigilada.
type Wallet struct {
	Address    string
	Alias      string
	TradeCount int
	VolumeUSDC float64
	LastActive time.Time
}

// BotTradeStatus es el estado de una orden propia.
type BotTradeStatus string

const (
	BotTradeOpen   BotTradeStatus = "OPEN"
	BotTradeFailed BotTradeStatus = "FAILED"
	BotTradeClosed BotTradeStatus = "CLOSED"
)

// BotTrade es una orden enviada por el bot al copiar un trade.
type BotTrade struct {
	ID           int64
	IntentID     string
	ConditionID  string
	Outcome      string
	InstrumentID string
	Side         Side
	EntryPrice   float64
	SizeUSDC     float64
	OrderRef     string
	Status       BotTradeStatus
	Timestamp    time.Time
}
