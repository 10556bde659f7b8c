// Copyright (c) 2025 BVK Chaitanya

// Package ledger tracks the in-flight buy/sell round trip on the shared
// trading account and reconciles it against exchange order state. Orders
// are observed through polling only; a leg is considered fully settled when
// its latest order reaches a terminal status and the relevant asset balance
// has drained below a configured threshold.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bvk/shiftbot/config"
	"github.com/bvk/shiftbot/exchange"
	"github.com/bvk/shiftbot/session"
	"github.com/bvk/shiftbot/store"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

var (
	// ErrActiveTransaction is returned when a buy or sell violates the round
	// trip preconditions (e.g. buying again before the open trip is sold).
	ErrActiveTransaction = errors.New("conflicting active transaction state")

	// ErrBadOrderData indicates a stored order id that cannot be parsed; this
	// is a data-integrity problem and is never silently ignored.
	ErrBadOrderData = errors.New("malformed order data")
)

// Phase is the derived position of a transaction in its round trip. The
// ready flags and the presence of the avg prices jointly encode it;
// transitions are monotonic.
type Phase int

const (
	BuyOpen Phase = iota
	BuySettling
	AwaitingSell
	SellOpen
	SellSettling
	Closed
)

func (p Phase) String() string {
	switch p {
	case BuyOpen:
		return "buy-open"
	case BuySettling:
		return "buy-settling"
	case AwaitingSell:
		return "awaiting-sell"
	case SellOpen:
		return "sell-open"
	case SellSettling:
		return "sell-settling"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// PhaseOf derives the phase from a transaction's persisted fields.
func PhaseOf(t *store.Transaction) Phase {
	switch {
	case t.SellAvgPrice != nil:
		return Closed
	case t.BuyAvgPrice == nil && !t.BuyReady:
		return BuyOpen
	case t.BuyAvgPrice == nil:
		return BuySettling
	case len(store.OrderIDList(t.SellOrderIDs)) == 0:
		return AwaitingSell
	case !t.SellReady:
		return SellOpen
	default:
		return SellSettling
	}
}

// Event announces a settlement decision on the active transaction's leg.
type Event struct {
	TransactionID int64
	ClockStubID   int64
	UserID        int64
	Side          string
	AvgPrice      decimal.Decimal

	// Ready is true when the leg's latest order went terminal without
	// draining the balance: another order may be placed on the same leg.
	// AvgPrice is unset on these events.
	Ready bool

	// Closed is true when the sell leg settled and the round trip is done.
	Closed bool
}

type Ledger struct {
	session *session.Session

	cfg *config.Config

	settlementTopic *topic.Topic[*Event]
}

func New(s *session.Session, cfg *config.Config) *Ledger {
	return &Ledger{
		session:         s,
		cfg:             cfg,
		settlementTopic: topic.New[*Event](),
	}
}

func (l *Ledger) Close() {
	l.settlementTopic.Close()
}

// SettlementUpdates subscribes to leg settlement events.
func (l *Ledger) SettlementUpdates() (*topic.Receiver[*Event], error) {
	return topic.Subscribe(l.settlementTopic, 0, false /* includeRecent */)
}

// Current returns the account's active transaction, or nil when none. Read
// only; does not take the account mutex.
func (l *Ledger) Current(ctx context.Context) (*store.Transaction, error) {
	var t *store.Transaction
	err := l.session.View(ctx, func(ctx context.Context, a *store.Account) error {
		if a.ActiveTransaction == nil {
			return nil
		}
		v, err := l.session.Store().Transaction(ctx, *a.ActiveTransaction)
		if err != nil {
			return err
		}
		t = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CheckBuy validates the buy-leg precondition. A nil transaction means a
// fresh round trip may begin.
func CheckBuy(t *store.Transaction) error {
	if t == nil {
		return nil
	}
	if t.BuyAvgPrice != nil {
		return fmt.Errorf("buy leg is complete, sell first: %w", ErrActiveTransaction)
	}
	if !t.BuyReady {
		return fmt.Errorf("a buy order is still unconfirmed: %w", ErrActiveTransaction)
	}
	return nil
}

// CheckSell validates the sell-leg precondition.
func CheckSell(t *store.Transaction) error {
	if t == nil {
		return fmt.Errorf("no active transaction to sell: %w", ErrActiveTransaction)
	}
	if t.BuyAvgPrice == nil {
		return fmt.Errorf("buy leg is not settled yet: %w", ErrActiveTransaction)
	}
	if !t.SellReady {
		return fmt.Errorf("a sell order is still unconfirmed: %w", ErrActiveTransaction)
	}
	return nil
}

// RecordBuy records a placed buy order against the account's round trip,
// creating and activating a new transaction when none exists. Callers must
// hold the account mutex and have validated CheckBuy beforehand.
func (l *Ledger) RecordBuy(ctx context.Context, a *store.Account, stubID int64, orderID string) error {
	db := l.session.Store()
	if a.ActiveTransaction == nil {
		t, err := db.CreateTransaction(ctx, stubID, orderID, time.Now())
		if err != nil {
			return fmt.Errorf("could not create transaction: %w", err)
		}
		if err := db.SetActiveTransaction(ctx, a.ID, &t.ID); err != nil {
			return fmt.Errorf("could not activate transaction: %w", err)
		}
		return nil
	}
	if err := db.AppendBuyOrder(ctx, *a.ActiveTransaction, orderID); err != nil {
		return fmt.Errorf("could not append buy order: %w", err)
	}
	return nil
}

// RecordSell records a placed sell order on the active transaction. Callers
// must hold the account mutex and have validated CheckSell beforehand.
func (l *Ledger) RecordSell(ctx context.Context, a *store.Account, orderID string) error {
	if a.ActiveTransaction == nil {
		return ErrActiveTransaction
	}
	if err := l.session.Store().AppendSellOrder(ctx, *a.ActiveTransaction, orderID); err != nil {
		return fmt.Errorf("could not append sell order: %w", err)
	}
	return nil
}

// Reconcile advances the active transaction based on the latest exchange
// order status and balances. It is invoked periodically by the poller; a
// failed tick leaves state untouched and is retried from scratch on the
// next tick.
func (l *Ledger) Reconcile(ctx context.Context) error {
	return l.session.Do(ctx, func(ctx context.Context, a *store.Account) error {
		if a.ActiveTransaction == nil {
			return nil
		}
		db := l.session.Store()
		t, err := db.Transaction(ctx, *a.ActiveTransaction)
		if err != nil {
			return fmt.Errorf("could not load active transaction: %w", err)
		}

		snap := l.cfg.Snapshot()
		symbol, err := snap.RequireString("trading", "symbol")
		if err != nil {
			return err
		}
		ex := l.session.Exchange(a)
		info, err := ex.GetSymbolInfo(ctx, symbol)
		if err != nil {
			return fmt.Errorf("could not resolve symbol %q: %w", symbol, err)
		}

		sellLeg := t.BuyAvgPrice != nil
		var ids []string
		var asset, thresholdKey string
		if sellLeg {
			ids = store.OrderIDList(t.SellOrderIDs)
			asset, thresholdKey = info.BaseAsset, "base_asset_threshold"
		} else {
			ids = store.OrderIDList(t.BuyOrderIDs)
			asset, thresholdKey = info.QuoteAsset, "quote_asset_threshold"
		}
		if len(ids) == 0 {
			return nil
		}
		threshold, err := snap.RequireDecimal("trading", thresholdKey)
		if err != nil {
			return err
		}

		last, err := parseOrderID(ids[len(ids)-1])
		if err != nil {
			return err
		}
		order, err := ex.GetOrder(ctx, symbol, last)
		if err != nil {
			return fmt.Errorf("could not fetch order %d: %w", last, err)
		}
		if !exchange.IsDone(order.Status) {
			return nil
		}

		balance, err := ex.GetBalance(ctx, asset)
		if err != nil {
			return fmt.Errorf("could not fetch %s balance: %w", asset, err)
		}
		if balance.Total().GreaterThan(threshold) {
			// The leg is not drained yet; allow another order on the same
			// leg. The event fires only on the flag transition, not on every
			// tick while the flag stays set.
			already, side, setReady := t.BuyReady, "BUY", db.SetBuyReady
			if sellLeg {
				already, side, setReady = t.SellReady, "SELL", db.SetSellReady
			}
			if already {
				return nil
			}
			stub, err := db.ClockStub(ctx, t.ClockStubID)
			if err != nil {
				return fmt.Errorf("could not load transaction's clock stub: %w", err)
			}
			if err := setReady(ctx, t.ID, true); err != nil {
				return err
			}
			sendCh, _ := topic.SendCh(l.settlementTopic)
			sendCh <- &Event{
				TransactionID: t.ID,
				ClockStubID:   t.ClockStubID,
				UserID:        stub.UserID,
				Side:          side,
				Ready:         true,
			}
			return nil
		}

		avg, ok, err := l.weightedAvgPrice(ctx, ex, symbol, ids)
		if err != nil {
			return err
		}
		if !ok {
			// Nothing has executed yet; defer to the next tick.
			slog.Warn("leg is terminal and below threshold but has no fills yet", "transaction", t.ID, "sell", sellLeg)
			return nil
		}

		stub, err := db.ClockStub(ctx, t.ClockStubID)
		if err != nil {
			return fmt.Errorf("could not load transaction's clock stub: %w", err)
		}

		if sellLeg {
			if err := db.SettleSellLeg(ctx, t.ID, avg); err != nil {
				return fmt.Errorf("could not settle sell leg: %w", err)
			}
			if err := db.SetActiveTransaction(ctx, a.ID, nil); err != nil {
				return fmt.Errorf("could not detach closed transaction: %w", err)
			}
			sendCh, _ := topic.SendCh(l.settlementTopic)
			sendCh <- &Event{
				TransactionID: t.ID,
				ClockStubID:   t.ClockStubID,
				UserID:        stub.UserID,
				Side:          "SELL",
				AvgPrice:      avg,
				Closed:        true,
			}
			return nil
		}
		if err := db.SettleBuyLeg(ctx, t.ID, avg); err != nil {
			return fmt.Errorf("could not settle buy leg: %w", err)
		}
		sendCh, _ := topic.SendCh(l.settlementTopic)
		sendCh <- &Event{
			TransactionID: t.ID,
			ClockStubID:   t.ClockStubID,
			UserID:        stub.UserID,
			Side:          "BUY",
			AvgPrice:      avg,
		}
		return nil
	})
}

// weightedAvgPrice computes the quantity-weighted mean fill price across all
// orders of a leg. Orders with no executed quantity are excluded; ok is
// false when nothing remains after filtering.
func (l *Ledger) weightedAvgPrice(ctx context.Context, ex exchange.Exchange, symbol string, ids []string) (decimal.Decimal, bool, error) {
	var totalQuote, totalQty decimal.Decimal
	for _, id := range ids {
		v, err := parseOrderID(id)
		if err != nil {
			return decimal.Zero, false, err
		}
		order, err := ex.GetOrder(ctx, symbol, v)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("could not fetch order %d: %w", v, err)
		}
		if order.ExecutedQty.IsZero() {
			continue
		}
		totalQuote = totalQuote.Add(order.CumulativeQuoteQty)
		totalQty = totalQty.Add(order.ExecutedQty)
	}
	if totalQty.IsZero() {
		return decimal.Zero, false, nil
	}
	return totalQuote.Div(totalQty), true, nil
}

func parseOrderID(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("order id %q: %w", s, ErrBadOrderData)
	}
	return v, nil
}
