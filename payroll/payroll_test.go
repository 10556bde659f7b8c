// Copyright (c) 2025 BVK Chaitanya

package payroll

import (
	"context"
	"testing"
	"time"

	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/timerange"
	"github.com/shopspring/decimal"
)

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.AddUser(ctx, 1, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := db.AddUser(ctx, 2, "bob"); err != nil {
		t.Fatal(err)
	}

	loc := time.UTC
	day := time.Date(2026, 9, 2, 9, 0, 0, 0, loc)

	// Alice works a 90 minute session with one closed round trip (+5) and
	// one still-open trip (ignored).
	stub, err := db.CreateClockStub(ctx, 1, day)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.CloseClockStub(ctx, stub.ID, day.Add(90*time.Minute)); err != nil {
		t.Fatal(err)
	}
	closed, err := db.CreateTransaction(ctx, stub.ID, "1", day)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SettleBuyLeg(ctx, closed.ID, decimal.NewFromInt(100)); err != nil {
		t.Fatal(err)
	}
	if err := db.SettleSellLeg(ctx, closed.ID, decimal.NewFromInt(105)); err != nil {
		t.Fatal(err)
	}
	open, err := db.CreateTransaction(ctx, stub.ID, "2", day)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SettleBuyLeg(ctx, open.ID, decimal.NewFromInt(200)); err != nil {
		t.Fatal(err)
	}

	// Bob's session is still active and must not appear.
	if _, err := db.CreateClockStub(ctx, 2, day); err != nil {
		t.Fatal(err)
	}

	summaries, err := New(db).Summarize(ctx, timerange.Day(day, loc))
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("want 1 summary, got %d", len(summaries))
	}
	s := summaries[0]
	if s.Tag != "alice" {
		t.Fatalf("tag: got %q, want alice", s.Tag)
	}
	if s.Minutes != 90 {
		t.Fatalf("minutes: got %d, want 90", s.Minutes)
	}
	if want := "5"; s.Profit.String() != want {
		t.Fatalf("profit: got %s, want %s", s.Profit, want)
	}

	// A different day has nothing.
	other, err := New(db).Summarize(ctx, timerange.Day(day.AddDate(0, 0, 7), loc))
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Fatalf("want no summaries, got %d", len(other))
	}

	// Lifetime matches the day.
	all, err := New(db).Summarize(ctx, timerange.Lifetime())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Minutes != 90 {
		t.Fatalf("unexpected lifetime summaries: %+v", all)
	}
}
