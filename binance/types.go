// Copyright (c) 2025 BVK Chaitanya

package binance

import (
	"github.com/bvk/shiftbot/exchange"
	"github.com/shopspring/decimal"
)

type balanceEntry struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

type accountResponse struct {
	Balances []balanceEntry `json:"balances"`
}

type orderResponse struct {
	Symbol             string          `json:"symbol"`
	OrderID            int64           `json:"orderId"`
	ClientOrderID      string          `json:"clientOrderId"`
	Price              decimal.Decimal `json:"price"`
	ExecutedQty        decimal.Decimal `json:"executedQty"`
	CumulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	Status             string          `json:"status"`
	Side               string          `json:"side"`
}

func (v *orderResponse) export(symbol string) *exchange.Order {
	if len(v.Symbol) == 0 {
		v.Symbol = symbol
	}
	return &exchange.Order{
		OrderID:            v.OrderID,
		ClientOrderID:      v.ClientOrderID,
		Symbol:             v.Symbol,
		Side:               v.Side,
		Status:             v.Status,
		Price:              v.Price,
		ExecutedQty:        v.ExecutedQty,
		CumulativeQuoteQty: v.CumulativeQuoteQty,
	}
}

type symbolEntry struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

type exchangeInfoResponse struct {
	Symbols []symbolEntry `json:"symbols"`
}

type tickerResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}
