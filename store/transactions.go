// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one buy-then-sell round trip tied to a clock stub. Order
// ids are kept as a comma-joined list in placement order. The avg-price
// columns are set exactly once, when the corresponding leg fully settles,
// and never cleared.
type Transaction struct {
	ID          int64
	ClockStubID int64
	CreateTime  time.Time

	BuyOrderIDs string
	BuyReady    bool
	BuyAvgPrice *decimal.Decimal

	SellOrderIDs string
	SellReady    bool
	SellAvgPrice *decimal.Decimal
}

// OrderIDList splits a comma-joined order id column, dropping empty items.
func OrderIDList(joined string) []string {
	var ids []string
	for _, f := range strings.Split(joined, ",") {
		if f = strings.TrimSpace(f); len(f) != 0 {
			ids = append(ids, f)
		}
	}
	return ids
}

const transactionColumns = `id, clock_stub_id, create_time, buy_order_ids, buy_ready, buy_avg_price, sell_order_ids, sell_ready, sell_avg_price`

func scanTransaction(row interface{ Scan(...any) error }) (*Transaction, error) {
	t := new(Transaction)
	var created int64
	var buyAvg, sellAvg sql.NullString
	if err := row.Scan(&t.ID, &t.ClockStubID, &created, &t.BuyOrderIDs, &t.BuyReady, &buyAvg, &t.SellOrderIDs, &t.SellReady, &sellAvg); err != nil {
		return nil, err
	}
	t.CreateTime = loadTime(created)
	var err error
	if t.BuyAvgPrice, err = loadNullDecimal(buyAvg); err != nil {
		return nil, fmt.Errorf("transaction %d has malformed buy avg price: %w", t.ID, err)
	}
	if t.SellAvgPrice, err = loadNullDecimal(sellAvg); err != nil {
		return nil, fmt.Errorf("transaction %d has malformed sell avg price: %w", t.ID, err)
	}
	return t, nil
}

func loadNullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateTransaction opens a new round trip seeded with the first buy order.
// The buy leg starts not-ready: a buy order is outstanding until the
// reconciler confirms it.
func (s *Store) CreateTransaction(ctx context.Context, stubID int64, buyOrderID string, at time.Time) (*Transaction, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (clock_stub_id, create_time, buy_order_ids) VALUES (?, ?, ?)`,
		stubID, storeTime(at), buyOrderID)
	if err != nil {
		return nil, fmt.Errorf("could not create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Transaction(ctx, id)
}

func (s *Store) Transaction(ctx context.Context, id int64) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("could not load transaction %d: %w", id, err)
	}
	return t, nil
}

// Transactions returns all round trips recorded under a clock stub.
func (s *Store) Transactions(ctx context.Context, stubID int64) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE clock_stub_id = ? ORDER BY id ASC`, stubID)
	if err != nil {
		return nil, fmt.Errorf("could not list transactions: %w", err)
	}
	defer rows.Close()

	var ts []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	return ts, rows.Err()
}

// AppendBuyOrder appends another order id to the buy leg and marks the leg
// not-ready until the reconciler confirms the new order.
func (s *Store) AppendBuyOrder(ctx context.Context, id int64, orderID string) error {
	err := s.execOne(ctx, `
		UPDATE transactions
		SET buy_ready = 0,
		    buy_order_ids = CASE WHEN buy_order_ids = '' THEN ? ELSE buy_order_ids || ',' || ? END
		WHERE id = ?`, orderID, orderID, id)
	if err != nil {
		return fmt.Errorf("could not append buy order to transaction %d: %w", id, err)
	}
	return nil
}

// AppendSellOrder is the sell-leg mirror of AppendBuyOrder.
func (s *Store) AppendSellOrder(ctx context.Context, id int64, orderID string) error {
	err := s.execOne(ctx, `
		UPDATE transactions
		SET sell_ready = 0,
		    sell_order_ids = CASE WHEN sell_order_ids = '' THEN ? ELSE sell_order_ids || ',' || ? END
		WHERE id = ?`, orderID, orderID, id)
	if err != nil {
		return fmt.Errorf("could not append sell order to transaction %d: %w", id, err)
	}
	return nil
}

// SetBuyReady flips only the buy-ready flag ("cleared for another buy
// attempt"; the leg is not settled).
func (s *Store) SetBuyReady(ctx context.Context, id int64, ready bool) error {
	if err := s.execOne(ctx, `UPDATE transactions SET buy_ready = ? WHERE id = ?`, ready, id); err != nil {
		return fmt.Errorf("could not set buy-ready on transaction %d: %w", id, err)
	}
	return nil
}

func (s *Store) SetSellReady(ctx context.Context, id int64, ready bool) error {
	if err := s.execOne(ctx, `UPDATE transactions SET sell_ready = ? WHERE id = ?`, ready, id); err != nil {
		return fmt.Errorf("could not set sell-ready on transaction %d: %w", id, err)
	}
	return nil
}

// SettleBuyLeg records the final weighted-average buy price and opens the
// sell leg. The filter keeps the avg-price column write-once.
func (s *Store) SettleBuyLeg(ctx context.Context, id int64, avgPrice decimal.Decimal) error {
	err := s.execOne(ctx, `
		UPDATE transactions SET buy_ready = 0, sell_ready = 1, buy_avg_price = ?
		WHERE id = ? AND buy_avg_price IS NULL`, avgPrice.String(), id)
	if err != nil {
		return fmt.Errorf("could not settle buy leg of transaction %d: %w", id, err)
	}
	return nil
}

// SettleSellLeg records the final weighted-average sell price. The caller is
// responsible for detaching the transaction from the account.
func (s *Store) SettleSellLeg(ctx context.Context, id int64, avgPrice decimal.Decimal) error {
	err := s.execOne(ctx, `
		UPDATE transactions SET sell_ready = 0, sell_avg_price = ?
		WHERE id = ? AND sell_avg_price IS NULL`, avgPrice.String(), id)
	if err != nil {
		return fmt.Errorf("could not settle sell leg of transaction %d: %w", id, err)
	}
	return nil
}
