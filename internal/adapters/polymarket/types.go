package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Data API ---

// activityEntry es un item de GET /activity. Los numéricos llegan a veces como
// string y a veces como número, usamos json.Number. Un json.Number vacío
// significa campo ausente.
type activityEntry struct {
	ProxyWallet     string      `json:"proxyWallet"`
	Timestamp       json.Number `json:"timestamp"`
	ConditionID     string      `json:"conditionId"`
	Type            string      `json:"type"`
	Size            json.Number `json:"size"`
	USDCSize        json.Number `json:"usdcSize"`
	TransactionHash string      `json:"transactionHash"`
	Price           json.Number `json:"price"`
	Asset           string      `json:"asset"`
	Side            string      `json:"side"`
	OutcomeIndex    json.Number `json:"outcomeIndex"`
	Title           string      `json:"title"`
	Slug            string      `json:"slug"`
	Outcome         string      `json:"outcome"`
}

// positionEntry es un item de GET /positions.
type positionEntry struct {
	ProxyWallet  string      `json:"proxyWallet"`
	Asset        string      `json:"asset"`
	ConditionID  string      `json:"conditionId"`
	Size         json.Number `json:"size"`
	AvgPrice     json.Number `json:"avgPrice"`
	CurPrice     json.Number `json:"curPrice"`
	Redeemable   bool        `json:"redeemable"`
	Title        string      `json:"title"`
	Outcome      string      `json:"outcome"`
	OutcomeIndex json.Number `json:"outcomeIndex"`
}

// --- CLOB API ---

// clobMarket es la respuesta de GET /markets/{condition_id}.
type clobMarket struct {
	ConditionID string      `json:"condition_id"`
	Question    string      `json:"question"`
	Tokens      []clobToken `json:"tokens"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
	NegRisk     bool        `json:"neg_risk"`
}

// clobToken representa un token (YES/NO) en el CLOB.
type clobToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket contiene la metadata de un mercado en Gamma.
// outcomes y clobTokenIds llegan como arrays JSON serializados dentro de un string.
type gammaMarket struct {
	ConditionID  string `json:"conditionId"`
	Question     string `json:"question"`
	Slug         string `json:"slug"`
	Outcomes     string `json:"outcomes"`
	ClobTokenIDs string `json:"clobTokenIds"`
	Active       bool   `json:"active"`
	Closed       bool   `json:"closed"`
}
