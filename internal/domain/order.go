package domain

import "github.com/shopspring/decimal"

// Order represents a trading order reported by the exchange.
// Execution is handled elsewhere; this core only tracks order state as
// delivered by account updates.
type Order struct {
	ID           string
	Symbol       string
	Side         string // "BUY", "SELL"
	Type         string // "LIMIT", "MARKET"
	Price        decimal.Decimal
	Amount       decimal.Decimal
	Filled       decimal.Decimal
	Status       string // "NEW", "PARTIALLY_FILLED", "FILLED", "CANCELED"
	CreatedAtMs  int64

	// LinkedPortfolio is an order-specific portfolio override, used for
	// isolated-margin-style bookkeeping. Nil for orders funded from the
	// shared session portfolio.
	LinkedPortfolio *Portfolio
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeLimit  = "LIMIT"
	OrderTypeMarket = "MARKET"

	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
)

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}
