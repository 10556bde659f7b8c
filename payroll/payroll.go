// Copyright (c) 2025 BVK Chaitanya

// Package payroll derives per-user worked minutes and realized profit from
// closed clock sessions and their round-trip transactions. Read-only.
package payroll

import (
	"context"
	"fmt"

	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/timerange"
	"github.com/shopspring/decimal"
)

// Summary is one user's totals for a window.
type Summary struct {
	UserID int64
	Tag    string

	Minutes int64

	// Profit is the sum of (sellAvgPrice - buyAvgPrice) over all fully
	// closed transactions of the user's sessions in the window.
	Profit decimal.Decimal
}

type Aggregator struct {
	db *store.Store
}

func New(db *store.Store) *Aggregator {
	return &Aggregator{db: db}
}

// Summarize computes totals for every registered user over the window.
// Users with no closed sessions in the window are omitted.
func (p *Aggregator) Summarize(ctx context.Context, r *timerange.Range) ([]*Summary, error) {
	users, err := p.db.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list users: %w", err)
	}

	var summaries []*Summary
	for _, u := range users {
		s, err := p.summarizeUser(ctx, u, r)
		if err != nil {
			return nil, err
		}
		if s != nil {
			summaries = append(summaries, s)
		}
	}
	return summaries, nil
}

func (p *Aggregator) summarizeUser(ctx context.Context, u *store.User, r *timerange.Range) (*Summary, error) {
	stubs, err := p.db.ClockStubs(ctx, u.ID, r.Begin, r.End)
	if err != nil {
		return nil, fmt.Errorf("could not list clock stubs for user %d: %w", u.ID, err)
	}

	s := &Summary{UserID: u.ID, Tag: u.Tag}
	var nclosed int
	for _, stub := range stubs {
		if stub.EndTime == nil {
			// Still active; counted once it closes.
			continue
		}
		nclosed++
		s.Minutes += int64(stub.EndTime.Sub(stub.StartTime).Minutes())

		transactions, err := p.db.Transactions(ctx, stub.ID)
		if err != nil {
			return nil, fmt.Errorf("could not list transactions for stub %d: %w", stub.ID, err)
		}
		for _, t := range transactions {
			if t.BuyAvgPrice == nil || t.SellAvgPrice == nil {
				continue
			}
			s.Profit = s.Profit.Add(t.SellAvgPrice.Sub(*t.BuyAvgPrice))
		}
	}
	if nclosed == 0 {
		return nil, nil
	}
	return s, nil
}
