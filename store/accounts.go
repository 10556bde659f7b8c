// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// Account is one stored exchange account. At most one account row has the
// selected flag set; the active_* columns are owned by the core and always
// reference live rows of the matching kind.
type Account struct {
	ID       int64
	Name     string
	Selected bool
	Testnet  bool

	APIKey    string
	APISecret string

	ActiveClockStub   *int64
	ActiveReservation *int64
	ActiveTransaction *int64
}

const accountColumns = `id, name, selected, testnet, api_key, api_secret, active_clock_stub, active_reservation, active_transaction`

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	a := new(Account)
	var stub, resv, txn sql.NullInt64
	if err := row.Scan(&a.ID, &a.Name, &a.Selected, &a.Testnet, &a.APIKey, &a.APISecret, &stub, &resv, &txn); err != nil {
		return nil, err
	}
	a.ActiveClockStub = loadNullID(stub)
	a.ActiveReservation = loadNullID(resv)
	a.ActiveTransaction = loadNullID(txn)
	return a, nil
}

// AddAccount creates a new account entry. Account names are unique;
// os.ErrExist is returned for a duplicate name.
func (s *Store) AddAccount(ctx context.Context, name string, testnet bool, apiKey, apiSecret string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (name, testnet, api_key, api_secret) VALUES (?, ?, ?, ?)`,
		name, testnet, apiKey, apiSecret)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, fmt.Errorf("account %q: %w", name, os.ErrExist)
		}
		return 0, fmt.Errorf("could not add account %q: %w", name, err)
	}
	return res.LastInsertId()
}

func (s *Store) Accounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("could not list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SelectedAccount returns the account marked selected. Returns
// ErrAccountMissing when no account is selected.
func (s *Store) SelectedAccount(ctx context.Context) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE selected = 1 LIMIT 1`)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountMissing
		}
		return nil, fmt.Errorf("could not load selected account: %w", err)
	}
	return a, nil
}

// SelectAccount marks the named account as selected and clears the flag on
// every other account.
func (s *Store) SelectAccount(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin select-account transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET selected = 0 WHERE selected = 1`); err != nil {
		return fmt.Errorf("could not unselect accounts: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE accounts SET selected = 1 WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("could not select account %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("account %q: %w", name, os.ErrNotExist)
	}
	return tx.Commit()
}

func (s *Store) SetActiveClockStub(ctx context.Context, accountID int64, stubID *int64) error {
	if err := s.execOne(ctx, `UPDATE accounts SET active_clock_stub = ? WHERE id = ?`, storeNullID(stubID), accountID); err != nil {
		return fmt.Errorf("could not update active clock stub: %w", err)
	}
	return nil
}

func (s *Store) SetActiveReservation(ctx context.Context, accountID int64, reservationID *int64) error {
	if err := s.execOne(ctx, `UPDATE accounts SET active_reservation = ? WHERE id = ?`, storeNullID(reservationID), accountID); err != nil {
		return fmt.Errorf("could not update active reservation: %w", err)
	}
	return nil
}

func (s *Store) SetActiveTransaction(ctx context.Context, accountID int64, transactionID *int64) error {
	if err := s.execOne(ctx, `UPDATE accounts SET active_transaction = ? WHERE id = ?`, storeNullID(transactionID), accountID); err != nil {
		return fmt.Errorf("could not update active transaction: %w", err)
	}
	return nil
}
