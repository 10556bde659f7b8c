// Copyright (c) 2025 BVK Chaitanya

// Package trader implements the user-facing trading operations on the
// shared account: buy, sell, cancel and the read-only balance/price/order
// queries. All state-changing operations require the caller to hold the
// account lock and run under the account mutex.
package trader

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bvk/shiftbot/clock"
	"github.com/bvk/shiftbot/config"
	"github.com/bvk/shiftbot/exchange"
	"github.com/bvk/shiftbot/ledger"
	"github.com/bvk/shiftbot/session"
	"github.com/bvk/shiftbot/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

// Balance buffers keep a residue behind so that fees and rounding never
// push an order over the available amount. Quantities are rounded to five
// decimal places.
var (
	quoteBuffer = decimal.NewFromInt(1)
	baseBuffer  = decimal.RequireFromString("0.00001")
)

const qtyPlaces = 5

// ErrMarketOrdersDisabled is returned when a market order is requested but
// the market_orders setting is off.
var ErrMarketOrdersDisabled = errors.New("market orders are disabled")

type Trader struct {
	session *session.Session

	cfg *config.Config

	ledger *ledger.Ledger
}

func New(s *session.Session, cfg *config.Config, l *ledger.Ledger) *Trader {
	return &Trader{session: s, cfg: cfg, ledger: l}
}

func (t *Trader) symbolInfo(ctx context.Context, ex exchange.Exchange) (*exchange.SymbolInfo, error) {
	symbol, err := t.cfg.Snapshot().RequireString("trading", "symbol")
	if err != nil {
		return nil, err
	}
	return ex.GetSymbolInfo(ctx, symbol)
}

// holderStub verifies that userID currently holds the account lock and
// returns the active stub. Must run under the account mutex.
func (t *Trader) holderStub(ctx context.Context, a *store.Account, userID int64) (*store.ClockStub, error) {
	if a.ActiveClockStub == nil {
		return nil, clock.ErrNotLocked
	}
	stub, err := t.session.Store().ClockStub(ctx, *a.ActiveClockStub)
	if err != nil {
		return nil, err
	}
	if stub.UserID != userID {
		return nil, clock.ErrHeldByOther
	}
	return stub, nil
}

func (t *Trader) activeTransaction(ctx context.Context, a *store.Account) (*store.Transaction, error) {
	if a.ActiveTransaction == nil {
		return nil, nil
	}
	return t.session.Store().Transaction(ctx, *a.ActiveTransaction)
}

// Buy places a buy order for userID using the available quote balance, less
// a safety buffer. A nil price places a market order (when enabled);
// otherwise a GTC limit order at the given price. pct limits the spend to a
// percentage of the available amount; zero means all of it.
func (t *Trader) Buy(ctx context.Context, userID int64, price *decimal.Decimal, pct int) (*exchange.Order, error) {
	var placed *exchange.Order
	err := t.session.Do(ctx, func(ctx context.Context, a *store.Account) error {
		stub, err := t.holderStub(ctx, a, userID)
		if err != nil {
			return err
		}
		tx, err := t.activeTransaction(ctx, a)
		if err != nil {
			return err
		}
		if err := ledger.CheckBuy(tx); err != nil {
			return err
		}

		ex := t.session.Exchange(a)
		info, err := t.symbolInfo(ctx, ex)
		if err != nil {
			return err
		}
		balance, err := ex.GetBalance(ctx, info.QuoteAsset)
		if err != nil {
			return fmt.Errorf("could not fetch %s balance: %w", info.QuoteAsset, err)
		}
		quote := balance.Free.Sub(quoteBuffer)
		if pct > 0 && pct < 100 {
			quote = quote.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100))
		}
		quote = quote.RoundDown(qtyPlaces)
		if !quote.IsPositive() {
			return fmt.Errorf("available %s balance %s is too small to buy", info.QuoteAsset, balance.Free)
		}

		clientOrderID := uuid.New().String()
		var order *exchange.Order
		if price == nil {
			if !t.cfg.Snapshot().BoolOrDefault("trading", "market_orders", true) {
				return ErrMarketOrdersDisabled
			}
			order, err = ex.MarketBuy(ctx, info.Symbol, quote, clientOrderID)
		} else {
			qty := quote.Div(*price).RoundDown(qtyPlaces)
			if !qty.IsPositive() {
				return fmt.Errorf("quote amount %s buys no quantity at %s", quote, price)
			}
			order, err = ex.LimitBuy(ctx, info.Symbol, qty, *price, clientOrderID)
		}
		if err != nil {
			return fmt.Errorf("could not place buy order: %w", err)
		}

		if err := t.ledger.RecordBuy(ctx, a, stub.ID, strconv.FormatInt(order.OrderID, 10)); err != nil {
			return err
		}
		if err := t.session.Store().TouchClockStub(ctx, stub.ID, time.Now()); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// Sell places a sell order for the available base balance, less a safety
// buffer. A nil price places a market order (when enabled).
func (t *Trader) Sell(ctx context.Context, userID int64, price *decimal.Decimal) (*exchange.Order, error) {
	var placed *exchange.Order
	err := t.session.Do(ctx, func(ctx context.Context, a *store.Account) error {
		stub, err := t.holderStub(ctx, a, userID)
		if err != nil {
			return err
		}
		tx, err := t.activeTransaction(ctx, a)
		if err != nil {
			return err
		}
		if err := ledger.CheckSell(tx); err != nil {
			return err
		}

		ex := t.session.Exchange(a)
		info, err := t.symbolInfo(ctx, ex)
		if err != nil {
			return err
		}
		balance, err := ex.GetBalance(ctx, info.BaseAsset)
		if err != nil {
			return fmt.Errorf("could not fetch %s balance: %w", info.BaseAsset, err)
		}
		qty := balance.Free.Sub(baseBuffer).RoundDown(qtyPlaces)
		if !qty.IsPositive() {
			return fmt.Errorf("available %s balance %s is too small to sell", info.BaseAsset, balance.Free)
		}

		clientOrderID := uuid.New().String()
		var order *exchange.Order
		if price == nil {
			if !t.cfg.Snapshot().BoolOrDefault("trading", "market_orders", true) {
				return ErrMarketOrdersDisabled
			}
			order, err = ex.MarketSell(ctx, info.Symbol, qty, clientOrderID)
		} else {
			order, err = ex.LimitSell(ctx, info.Symbol, qty, *price, clientOrderID)
		}
		if err != nil {
			return fmt.Errorf("could not place sell order: %w", err)
		}

		if err := t.ledger.RecordSell(ctx, a, strconv.FormatInt(order.OrderID, 10)); err != nil {
			return err
		}
		if err := t.session.Store().TouchClockStub(ctx, stub.ID, time.Now()); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// AutoBuy performs a market buy, waits for the buy leg to settle and then
// places a limit sell at the settled average price plus offset. The wait is
// bounded by the buy timeout setting and does not hold the account mutex.
func (t *Trader) AutoBuy(ctx context.Context, userID int64, offset decimal.Decimal) (*exchange.Order, error) {
	updates, err := t.ledger.SettlementUpdates()
	if err != nil {
		return nil, err
	}
	defer updates.Close()
	settleCh, err := topic.ReceiveCh(updates)
	if err != nil {
		return nil, err
	}

	if _, err := t.Buy(ctx, userID, nil, 0); err != nil {
		return nil, err
	}

	timeout := time.Duration(t.cfg.Snapshot().IntOrDefault("trading", "buy_timeout_s", 60)) * time.Second
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-timer.C:
			return nil, fmt.Errorf("buy leg did not settle within %s", timeout)
		case event := <-settleCh:
			if event.Side != "BUY" || event.Ready {
				continue
			}
			price := event.AvgPrice.Add(offset)
			return t.Sell(ctx, userID, &price)
		}
	}
}

// Cancel cancels the most recent order of the active transaction's open
// leg.
func (t *Trader) Cancel(ctx context.Context, userID int64) error {
	return t.session.Do(ctx, func(ctx context.Context, a *store.Account) error {
		stub, err := t.holderStub(ctx, a, userID)
		if err != nil {
			return err
		}
		tx, err := t.activeTransaction(ctx, a)
		if err != nil {
			return err
		}
		if tx == nil {
			return fmt.Errorf("no active transaction: %w", ledger.ErrActiveTransaction)
		}
		ids := store.OrderIDList(tx.BuyOrderIDs)
		if tx.BuyAvgPrice != nil {
			ids = store.OrderIDList(tx.SellOrderIDs)
		}
		if len(ids) == 0 {
			return fmt.Errorf("no orders to cancel: %w", ledger.ErrActiveTransaction)
		}
		last, err := strconv.ParseInt(ids[len(ids)-1], 10, 64)
		if err != nil {
			return fmt.Errorf("order id %q: %w", ids[len(ids)-1], ledger.ErrBadOrderData)
		}

		ex := t.session.Exchange(a)
		info, err := t.symbolInfo(ctx, ex)
		if err != nil {
			return err
		}
		if err := ex.CancelOrder(ctx, info.Symbol, last); err != nil {
			return fmt.Errorf("could not cancel order %d: %w", last, err)
		}
		return t.session.Store().TouchClockStub(ctx, stub.ID, time.Now())
	})
}

// Balances returns the base and quote asset balances. Read-only.
func (t *Trader) Balances(ctx context.Context) ([]*exchange.Balance, error) {
	var balances []*exchange.Balance
	err := t.session.View(ctx, func(ctx context.Context, a *store.Account) error {
		ex := t.session.Exchange(a)
		info, err := t.symbolInfo(ctx, ex)
		if err != nil {
			return err
		}
		for _, asset := range []string{info.BaseAsset, info.QuoteAsset} {
			b, err := ex.GetBalance(ctx, asset)
			if err != nil {
				return fmt.Errorf("could not fetch %s balance: %w", asset, err)
			}
			balances = append(balances, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// Price returns the configured symbol's last ticker price. Read-only.
func (t *Trader) Price(ctx context.Context) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := t.session.View(ctx, func(ctx context.Context, a *store.Account) error {
		ex := t.session.Exchange(a)
		symbol, err := t.cfg.Snapshot().RequireString("trading", "symbol")
		if err != nil {
			return err
		}
		v, err := ex.GetPrice(ctx, symbol)
		if err != nil {
			return err
		}
		price = v
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

// Orders returns the exchange snapshots of every order on the active
// transaction, buy leg first. Read-only.
func (t *Trader) Orders(ctx context.Context) ([]*exchange.Order, error) {
	var orders []*exchange.Order
	err := t.session.View(ctx, func(ctx context.Context, a *store.Account) error {
		tx, err := t.activeTransaction(ctx, a)
		if err != nil {
			return err
		}
		if tx == nil {
			return nil
		}
		ex := t.session.Exchange(a)
		info, err := t.symbolInfo(ctx, ex)
		if err != nil {
			return err
		}
		ids := append(store.OrderIDList(tx.BuyOrderIDs), store.OrderIDList(tx.SellOrderIDs)...)
		for _, id := range ids {
			v, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return fmt.Errorf("order id %q: %w", id, ledger.ErrBadOrderData)
			}
			order, err := ex.GetOrder(ctx, info.Symbol, v)
			if err != nil {
				return fmt.Errorf("could not fetch order %d: %w", v, err)
			}
			orders = append(orders, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}
