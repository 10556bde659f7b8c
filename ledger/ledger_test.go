// Copyright (c) 2025 BVK Chaitanya

package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bvk/shiftbot/config"
	"github.com/bvk/shiftbot/exchange"
	"github.com/bvk/shiftbot/session"
	"github.com/bvk/shiftbot/store"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

type fakeExchange struct {
	orders   map[int64]*exchange.Order
	balances map[string]decimal.Decimal
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		orders:   make(map[int64]*exchange.Order),
		balances: make(map[string]decimal.Decimal),
	}
}

func (f *fakeExchange) GetBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	return &exchange.Balance{Asset: asset, Free: f.balances[asset]}, nil
}

func (f *fakeExchange) GetOrder(ctx context.Context, symbol string, orderID int64) (*exchange.Order, error) {
	v, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d not found", orderID)
	}
	return v, nil
}

func (f *fakeExchange) GetSymbolInfo(ctx context.Context, symbol string) (*exchange.SymbolInfo, error) {
	return &exchange.SymbolInfo{Symbol: symbol, BaseAsset: "BTC", QuoteAsset: "USDT"}, nil
}

func (f *fakeExchange) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("not supported")
}

func (f *fakeExchange) MarketBuy(ctx context.Context, symbol string, quoteQty decimal.Decimal, clientOrderID string) (*exchange.Order, error) {
	return nil, errors.New("not supported")
}

func (f *fakeExchange) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal, clientOrderID string) (*exchange.Order, error) {
	return nil, errors.New("not supported")
}

func (f *fakeExchange) LimitBuy(ctx context.Context, symbol string, qty, price decimal.Decimal, clientOrderID string) (*exchange.Order, error) {
	return nil, errors.New("not supported")
}

func (f *fakeExchange) LimitSell(ctx context.Context, symbol string, qty, price decimal.Decimal, clientOrderID string) (*exchange.Order, error) {
	return nil, errors.New("not supported")
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	return errors.New("not supported")
}

func (f *fakeExchange) addFill(orderID int64, status string, qty, quote string) {
	f.orders[orderID] = &exchange.Order{
		OrderID:            orderID,
		Symbol:             "BTCUSDT",
		Status:             status,
		ExecutedQty:        decimal.RequireFromString(qty),
		CumulativeQuoteQty: decimal.RequireFromString(quote),
	}
}

type fixture struct {
	db     *store.Store
	fake   *fakeExchange
	ledger *Ledger
	stub   *store.ClockStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.AddAccount(ctx, "main", true, "key", "secret"); err != nil {
		t.Fatal(err)
	}
	if err := db.SelectAccount(ctx, "main"); err != nil {
		t.Fatal(err)
	}
	if err := config.Seed(ctx, db); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	stub, err := db.CreateClockStub(ctx, 1, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	fake := newFakeExchange()
	s := session.New(db, func(a *store.Account) exchange.Exchange { return fake })
	l := New(s, cfg)
	t.Cleanup(l.Close)
	return &fixture{db: db, fake: fake, ledger: l, stub: stub}
}

func (f *fixture) account(t *testing.T) *store.Account {
	t.Helper()
	a, err := f.db.SelectedAccount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func (f *fixture) active(t *testing.T) *store.Transaction {
	t.Helper()
	v, err := f.ledger.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v == nil {
		t.Fatal("no active transaction")
	}
	return v
}

func TestBuySettlesAtWeightedAverage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Two buys: 1 @ 100 and 1 @ 110; the weighted average is 105.
	if err := f.ledger.RecordBuy(ctx, f.account(t), f.stub.ID, "11"); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.RecordBuy(ctx, f.account(t), f.stub.ID, "12"); err != nil {
		t.Fatal(err)
	}
	f.fake.addFill(11, exchange.StatusFilled, "1", "100")
	f.fake.addFill(12, exchange.StatusFilled, "1", "110")
	f.fake.balances["USDT"] = decimal.NewFromInt(5) // below quote threshold 10

	updates, err := f.ledger.SettlementUpdates()
	if err != nil {
		t.Fatal(err)
	}
	defer updates.Close()

	if err := f.ledger.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	v := f.active(t)
	if v.BuyAvgPrice == nil {
		t.Fatal("buy leg did not settle")
	}
	if want := "105"; v.BuyAvgPrice.String() != want {
		t.Fatalf("buy avg price: got %s, want %s", v.BuyAvgPrice, want)
	}
	if v.BuyReady || !v.SellReady {
		t.Fatalf("ready flags after buy settle: buy=%v sell=%v", v.BuyReady, v.SellReady)
	}
	if got := PhaseOf(v); got != AwaitingSell {
		t.Fatalf("phase: got %v, want %v", got, AwaitingSell)
	}

	ch, err := topic.ReceiveCh(updates)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case event := <-ch:
		if event.Side != "BUY" || event.Closed {
			t.Fatalf("unexpected settlement event %+v", event)
		}
		if event.UserID != 1 {
			t.Fatalf("event user: got %d, want 1", event.UserID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no settlement event received")
	}
}

func TestPartialSettleLeavesAvgUnset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.ledger.RecordBuy(ctx, f.account(t), f.stub.ID, "21"); err != nil {
		t.Fatal(err)
	}
	f.fake.addFill(21, exchange.StatusCanceled, "0.1", "10")
	f.fake.balances["USDT"] = decimal.NewFromInt(90) // still above threshold

	updates, err := f.ledger.SettlementUpdates()
	if err != nil {
		t.Fatal(err)
	}
	defer updates.Close()

	if err := f.ledger.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	v := f.active(t)
	if v.BuyAvgPrice != nil {
		t.Fatalf("avg price set while balance above threshold: %s", v.BuyAvgPrice)
	}
	if !v.BuyReady {
		t.Fatal("leg should be ready for another buy attempt")
	}
	if got := PhaseOf(v); got != BuySettling {
		t.Fatalf("phase: got %v, want %v", got, BuySettling)
	}
	// Another buy may now extend the same leg.
	if err := CheckBuy(v); err != nil {
		t.Fatal(err)
	}

	// The flag transition announces the extra attempt once; further ticks
	// with the flag already set stay silent.
	ch, err := topic.ReceiveCh(updates)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case event := <-ch:
		if !event.Ready || event.Side != "BUY" || event.UserID != 1 {
			t.Fatalf("unexpected ready event %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no ready event received")
	}
	if err := f.ledger.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case event := <-ch:
		t.Fatalf("duplicate ready event %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestZeroFillsDefer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.ledger.RecordBuy(ctx, f.account(t), f.stub.ID, "31"); err != nil {
		t.Fatal(err)
	}
	// Canceled with zero fill and balance below threshold: nothing can be
	// averaged, so reconciliation defers without touching state.
	f.fake.addFill(31, exchange.StatusCanceled, "0", "0")
	f.fake.balances["USDT"] = decimal.NewFromInt(1)

	if err := f.ledger.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	v := f.active(t)
	if v.BuyAvgPrice != nil || v.BuyReady || v.SellReady {
		t.Fatalf("state changed on zero-fill leg: %+v", v)
	}
}

func TestSellSettleClosesTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.ledger.RecordBuy(ctx, f.account(t), f.stub.ID, "41"); err != nil {
		t.Fatal(err)
	}
	f.fake.addFill(41, exchange.StatusFilled, "0.5", "55") // fill price 110
	f.fake.balances["USDT"] = decimal.NewFromInt(1)
	if err := f.ledger.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	v := f.active(t)
	if v.BuyAvgPrice == nil || v.BuyAvgPrice.String() != "110" {
		t.Fatalf("buy avg price: got %v, want 110", v.BuyAvgPrice)
	}
	if err := CheckSell(v); err != nil {
		t.Fatal(err)
	}

	if err := f.ledger.RecordSell(ctx, f.account(t), "42"); err != nil {
		t.Fatal(err)
	}
	v = f.active(t)
	if got := PhaseOf(v); got != SellOpen {
		t.Fatalf("phase: got %v, want %v", got, SellOpen)
	}

	f.fake.addFill(42, exchange.StatusFilled, "0.5", "60") // fill price 120
	f.fake.balances["BTC"] = decimal.Zero
	if err := f.ledger.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	if active, err := f.ledger.Current(ctx); err != nil || active != nil {
		t.Fatalf("transaction is still active after sell settle: %v (err %v)", active, err)
	}
	closed, err := f.db.Transactions(ctx, f.stub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(closed) != 1 {
		t.Fatalf("want 1 transaction, got %d", len(closed))
	}
	last := closed[0]
	if last.SellAvgPrice == nil || last.SellAvgPrice.String() != "120" {
		t.Fatalf("sell avg price: got %v, want 120", last.SellAvgPrice)
	}
	if got := PhaseOf(last); got != Closed {
		t.Fatalf("phase: got %v, want %v", got, Closed)
	}
}

func TestPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := CheckBuy(nil); err != nil {
		t.Fatal(err)
	}
	if err := CheckSell(nil); !errors.Is(err, ErrActiveTransaction) {
		t.Fatalf("want ErrActiveTransaction, got %v", err)
	}

	if err := f.ledger.RecordBuy(ctx, f.account(t), f.stub.ID, "51"); err != nil {
		t.Fatal(err)
	}
	v := f.active(t)
	// The first buy is still unconfirmed: no second buy, no sell.
	if err := CheckBuy(v); !errors.Is(err, ErrActiveTransaction) {
		t.Fatalf("want ErrActiveTransaction, got %v", err)
	}
	if err := CheckSell(v); !errors.Is(err, ErrActiveTransaction) {
		t.Fatalf("want ErrActiveTransaction, got %v", err)
	}
	if got := PhaseOf(v); got != BuyOpen {
		t.Fatalf("phase: got %v, want %v", got, BuyOpen)
	}
}

func TestBadOrderID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.ledger.RecordBuy(ctx, f.account(t), f.stub.ID, "garbage"); err != nil {
		t.Fatal(err)
	}
	err := f.ledger.Reconcile(ctx)
	if !errors.Is(err, ErrBadOrderData) {
		t.Fatalf("want ErrBadOrderData, got %v", err)
	}
}
