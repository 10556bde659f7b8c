// Copyright (c) 2025 BVK Chaitanya

package config

import (
	"context"
	"errors"
	"testing"

	"github.com/bvk/shiftbot/store"
	"github.com/shopspring/decimal"
)

func newTestConfig(t *testing.T) (*store.Store, *Config) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := Seed(ctx, db); err != nil {
		t.Fatal(err)
	}
	c, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	return db, c
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, c := newTestConfig(t)

	if err := c.Set(ctx, "trading", "symbol", "ETHUSDT"); err != nil {
		t.Fatal(err)
	}
	// Seeding again must not clobber operator-set values.
	if err := Seed(ctx, db); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Snapshot().String("trading", "symbol"); v != "ETHUSDT" {
		t.Fatalf("want ETHUSDT after reseed, got %q", v)
	}
}

func TestTypedGetters(t *testing.T) {
	_, c := newTestConfig(t)
	snap := c.Snapshot()

	if v, ok := snap.Int("schedule", "afk_warn_min"); !ok || v != 15 {
		t.Fatalf("want afk_warn_min 15, got %d ok=%v", v, ok)
	}
	if v, ok := snap.Bool("trading", "market_orders"); !ok || !v {
		t.Fatalf("want market_orders true, got %v ok=%v", v, ok)
	}
	if v, ok := snap.Decimal("trading", "quote_asset_threshold"); !ok || !v.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("want quote threshold 10, got %s ok=%v", v, ok)
	}
	// account_name is seeded without a value.
	if _, ok := snap.String("trading", "account_name"); ok {
		t.Fatalf("want account_name unset")
	}
	if _, err := snap.RequireString("trading", "account_name"); err == nil {
		t.Fatalf("want MissingError for account_name")
	} else {
		var me *MissingError
		if !errors.As(err, &me) || me.Section != "trading" || me.Key != "account_name" {
			t.Fatalf("want MissingError naming trading/account_name, got %v", err)
		}
	}
}

func TestSetTypeChecks(t *testing.T) {
	ctx := context.Background()
	_, c := newTestConfig(t)

	if err := c.Set(ctx, "schedule", "afk_warn_min", "notanumber"); err == nil {
		t.Fatalf("want type error setting int config to text")
	}
	if err := c.Set(ctx, "notify", "afk", "maybe"); err == nil {
		t.Fatalf("want type error setting bool config to text")
	}
	if err := c.Set(ctx, "schedule", "afk_warn_min", "30"); err != nil {
		t.Fatal(err)
	}
	// The snapshot swap must be visible without a reload.
	if v, _ := c.Snapshot().Int("schedule", "afk_warn_min"); v != 30 {
		t.Fatalf("want hot-swapped value 30, got %d", v)
	}
}
