package models

// Side сделки. Бот торгует только спот-лонг, но биржевые ордера знают обе стороны.
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Symbol — торгуемая пара из вотчлиста (TopSymbols).
type Symbol struct {
	Name           string  `json:"name"`
	Capitalisation float64 `json:"capitalisation"` // 24h quote volume
	Rank           int     `json:"rank"`
}

// Fill — результат исполненного маркет-ордера.
type Fill struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	QuoteQty float64 `json:"quote_qty"`
}
