// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSelectedAccount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.SelectedAccount(ctx); !errors.Is(err, ErrAccountMissing) {
		t.Fatalf("want ErrAccountMissing, got %v", err)
	}

	if _, err := s.AddAccount(ctx, "paper", true, "key", "secret"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddAccount(ctx, "paper", true, "key2", "secret2"); !errors.Is(err, os.ErrExist) {
		t.Fatalf("want os.ErrExist on duplicate account name, got %v", err)
	}
	if _, err := s.AddAccount(ctx, "live", false, "key3", "secret3"); err != nil {
		t.Fatal(err)
	}

	if err := s.SelectAccount(ctx, "paper"); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectAccount(ctx, "live"); err != nil {
		t.Fatal(err)
	}
	a, err := s.SelectedAccount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a.Name != "live" {
		t.Fatalf("want live account selected, got %q", a.Name)
	}
	accounts, err := s.Accounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	nselected := 0
	for _, a := range accounts {
		if a.Selected {
			nselected++
		}
	}
	if nselected != 1 {
		t.Fatalf("want exactly one selected account, got %d", nselected)
	}

	if err := s.SelectAccount(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want os.ErrNotExist for unknown account, got %v", err)
	}
}

func TestClockStubLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	stub, err := s.CreateClockStub(ctx, 100, now)
	if err != nil {
		t.Fatal(err)
	}
	if stub.EndTime != nil {
		t.Fatalf("new stub must be open")
	}
	if !stub.StartTime.Equal(stub.LastInteraction) {
		t.Fatalf("last interaction must start at start time")
	}
	if stub.AFKWarned {
		t.Fatalf("new stub must not carry an afk warning")
	}

	if err := s.SetAFKWarned(ctx, stub.ID, true); err != nil {
		t.Fatal(err)
	}
	later := now.Add(10 * time.Minute)
	if err := s.TouchClockStub(ctx, stub.ID, later); err != nil {
		t.Fatal(err)
	}
	stub, err = s.ClockStub(ctx, stub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stub.AFKWarned {
		t.Fatalf("touch must clear the afk warning")
	}
	if !stub.LastInteraction.Equal(later.UTC().Truncate(time.Second)) {
		t.Fatalf("want last interaction %v, got %v", later, stub.LastInteraction)
	}

	end := now.Add(time.Hour)
	if err := s.CloseClockStub(ctx, stub.ID, end); err != nil {
		t.Fatal(err)
	}
	// Closing an already closed stub is a no-op failure.
	if err := s.CloseClockStub(ctx, stub.ID, end.Add(time.Hour)); err == nil {
		t.Fatalf("want error closing an already closed stub")
	}
	stub, err = s.ClockStub(ctx, stub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stub.EndTime == nil || !stub.EndTime.Equal(end.UTC().Truncate(time.Second)) {
		t.Fatalf("want end time %v, got %v", end, stub.EndTime)
	}
}

func TestTransactionLegs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now()
	stub, err := s.CreateClockStub(ctx, 100, now)
	if err != nil {
		t.Fatal(err)
	}
	txn, err := s.CreateTransaction(ctx, stub.ID, "1001", now)
	if err != nil {
		t.Fatal(err)
	}
	if txn.BuyReady || txn.SellReady || txn.BuyAvgPrice != nil || txn.SellAvgPrice != nil {
		t.Fatalf("new transaction must start with both legs pending: %+v", txn)
	}
	if got := OrderIDList(txn.BuyOrderIDs); len(got) != 1 || got[0] != "1001" {
		t.Fatalf("want buy order ids [1001], got %v", got)
	}

	if err := s.SetBuyReady(ctx, txn.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendBuyOrder(ctx, txn.ID, "1002"); err != nil {
		t.Fatal(err)
	}
	txn, err = s.Transaction(ctx, txn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if txn.BuyReady {
		t.Fatalf("appending a buy order must clear buy-ready")
	}
	if got := OrderIDList(txn.BuyOrderIDs); len(got) != 2 || got[1] != "1002" {
		t.Fatalf("want buy order ids [1001 1002], got %v", got)
	}

	avg := decimal.RequireFromString("105")
	if err := s.SettleBuyLeg(ctx, txn.ID, avg); err != nil {
		t.Fatal(err)
	}
	// The avg price column is write-once.
	if err := s.SettleBuyLeg(ctx, txn.ID, decimal.RequireFromString("999")); err == nil {
		t.Fatalf("want error settling an already settled buy leg")
	}
	txn, err = s.Transaction(ctx, txn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if txn.BuyAvgPrice == nil || !txn.BuyAvgPrice.Equal(avg) {
		t.Fatalf("want buy avg price %s, got %v", avg, txn.BuyAvgPrice)
	}
	if !txn.SellReady {
		t.Fatalf("settled buy leg must open the sell leg")
	}

	if err := s.AppendSellOrder(ctx, txn.ID, "2001"); err != nil {
		t.Fatal(err)
	}
	sellAvg := decimal.RequireFromString("110.5")
	if err := s.SettleSellLeg(ctx, txn.ID, sellAvg); err != nil {
		t.Fatal(err)
	}
	txn, err = s.Transaction(ctx, txn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if txn.SellAvgPrice == nil || !txn.SellAvgPrice.Equal(sellAvg) {
		t.Fatalf("want sell avg price %s, got %v", sellAvg, txn.SellAvgPrice)
	}
	if txn.SellReady {
		t.Fatalf("settled sell leg must close the transaction")
	}
}

func TestConfigUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v := "BTCUSDT"
	row := &ConfigRow{Section: "trading", Key: "symbol", ValueType: 0, Value: &v, Description: "trading pair"}
	if err := s.InsertConfig(ctx, row); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertConfig(ctx, row); !errors.Is(err, os.ErrExist) {
		t.Fatalf("want os.ErrExist on duplicate config, got %v", err)
	}

	nv := "ETHUSDT"
	if err := s.SetConfigValue(ctx, "trading", "symbol", &nv); err != nil {
		t.Fatal(err)
	}
	c, err := s.Config(ctx, "trading", "symbol")
	if err != nil {
		t.Fatal(err)
	}
	if c.Value == nil || *c.Value != nv {
		t.Fatalf("want value %q, got %v", nv, c.Value)
	}

	if err := s.SetConfigValue(ctx, "trading", "nope", &nv); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want os.ErrNotExist for unknown config, got %v", err)
	}
}

func TestNextReservation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if r, err := s.NextReservation(ctx); err != nil || r != nil {
		t.Fatalf("want no next reservation, got %v %v", r, err)
	}

	now := time.Now().Truncate(time.Second)
	if _, err := s.CreateReservation(ctx, 2, now.Add(2*time.Hour), now.Add(3*time.Hour)); err != nil {
		t.Fatal(err)
	}
	first, err := s.CreateReservation(ctx, 1, now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	next, err := s.NextReservation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("want reservation %d first, got %+v", first.ID, next)
	}

	if err := s.DeleteReservation(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	next, err = s.NextReservation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || next.UserID != 2 {
		t.Fatalf("want user 2's reservation next, got %+v", next)
	}
}
