// Copyright (c) 2025 BVK Chaitanya

// Package session serializes access to the selected trading account. Every
// state-changing operation in the system runs under a single account mutex,
// so cross-field invariants (only the lock holder may trade, at most one
// active transaction, etc.) can be checked and updated atomically.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/bvk/shiftbot/exchange"
	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/syncmap"
)

// ExchangeFactory creates an exchange client for the given account's
// credentials.
type ExchangeFactory func(a *store.Account) exchange.Exchange

type Session struct {
	mu sync.Mutex

	db *store.Store

	newExchange ExchangeFactory

	// exchange clients are cached per account id; selecting a different
	// account picks a different cache entry.
	exchangeMap syncmap.Map[int64, exchange.Exchange]
}

func New(db *store.Store, factory ExchangeFactory) *Session {
	return &Session{
		db:          db,
		newExchange: factory,
	}
}

func (s *Session) Store() *store.Store {
	return s.db
}

// Exchange returns the (cached) exchange client for the given account.
func (s *Session) Exchange(a *store.Account) exchange.Exchange {
	if v, ok := s.exchangeMap.Load(a.ID); ok {
		return v
	}
	v, _ := s.exchangeMap.LoadOrStore(a.ID, s.newExchange(a))
	return v
}

// Do resolves the selected account and runs f while holding the account
// mutex. Fails with store.ErrAccountMissing when no account is selected.
// Callers must not block indefinitely inside f; long waits (user prompts,
// etc.) belong outside the mutex.
func (s *Session) Do(ctx context.Context, f func(ctx context.Context, a *store.Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.db.SelectedAccount(ctx)
	if err != nil {
		return fmt.Errorf("could not resolve selected account: %w", err)
	}
	return f(ctx, a)
}

// View resolves the selected account and runs f without the mutex. Intended
// for read-only queries that tolerate concurrent mutation.
func (s *Session) View(ctx context.Context, f func(ctx context.Context, a *store.Account) error) error {
	a, err := s.db.SelectedAccount(ctx)
	if err != nil {
		return fmt.Errorf("could not resolve selected account: %w", err)
	}
	return f(ctx, a)
}
