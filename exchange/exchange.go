// Copyright (c) 2025 BVK Chaitanya

// Package exchange defines the spot-exchange surface consumed by the
// trading operations and the order reconciler.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// Order statuses as reported by the exchange.
const (
	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
	StatusRejected        = "REJECTED"
	StatusExpired         = "EXPIRED"
)

// IsDone returns true for statuses that will never change again.
func IsDone(status string) bool {
	switch status {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Order is an exchange-side order snapshot.
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          string
	Status        string

	Price              decimal.Decimal
	ExecutedQty        decimal.Decimal
	CumulativeQuoteQty decimal.Decimal
}

// FillPrice returns the effective average price of the order's fills. The
// second result is false when nothing was executed (division by zero).
func (o *Order) FillPrice() (decimal.Decimal, bool) {
	if o.ExecutedQty.IsZero() {
		return decimal.Zero, false
	}
	return o.CumulativeQuoteQty.Div(o.ExecutedQty), true
}

// Balance is one asset's free/locked amounts.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Total returns free plus locked. Leg settlement compares this against the
// configured asset thresholds.
func (b *Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

type SymbolInfo struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
}

// Exchange is implemented by venue clients (see the binance package) and by
// test fakes.
type Exchange interface {
	GetBalance(ctx context.Context, asset string) (*Balance, error)
	GetOrder(ctx context.Context, symbol string, orderID int64) (*Order, error)
	GetSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error)
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// MarketBuy spends the given quote-asset amount; the other three place
	// base-asset quantities.
	MarketBuy(ctx context.Context, symbol string, quoteQty decimal.Decimal, clientOrderID string) (*Order, error)
	MarketSell(ctx context.Context, symbol string, qty decimal.Decimal, clientOrderID string) (*Order, error)
	LimitBuy(ctx context.Context, symbol string, qty, price decimal.Decimal, clientOrderID string) (*Order, error)
	LimitSell(ctx context.Context, symbol string, qty, price decimal.Decimal, clientOrderID string) (*Order, error)

	CancelOrder(ctx context.Context, symbol string, orderID int64) error
}
