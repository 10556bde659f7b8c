// Copyright (c) 2025 BVK Chaitanya

// Package clock implements the mutual-exclusion state machine over the
// shared trading account. A user "clocks in" to claim the account for one
// continuous session; reservations can pre-empt the current holder when
// their window begins.
package clock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bvk/shiftbot/session"
	"github.com/bvk/shiftbot/store"
)

var (
	// ErrAlreadyLocked is returned when the caller already holds the account.
	ErrAlreadyLocked = errors.New("account is already locked by you")

	// ErrHeldByOther is returned when another user holds the account.
	ErrHeldByOther = errors.New("account is locked by another user")

	// ErrReserved is returned when a reservation window belonging to a
	// different user is in effect.
	ErrReserved = errors.New("account is reserved by another user")

	// ErrNotLocked is returned when no user holds the account.
	ErrNotLocked = errors.New("account is not locked")
)

type Clock struct {
	session *session.Session
}

func New(s *session.Session) *Clock {
	return &Clock{session: s}
}

// Status returns the currently active clock stub, or nil when nobody holds
// the account. Read-only; does not take the account mutex.
func (c *Clock) Status(ctx context.Context) (*store.ClockStub, error) {
	var stub *store.ClockStub
	err := c.session.View(ctx, func(ctx context.Context, a *store.Account) error {
		if a.ActiveClockStub == nil {
			return nil
		}
		v, err := c.session.Store().ClockStub(ctx, *a.ActiveClockStub)
		if err != nil {
			return err
		}
		stub = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stub, nil
}

// Lock claims the account for userID. When a reservation window belonging
// to userID is in effect and another user holds the account, the current
// holder is force-unlocked and the claim proceeds; the forced unlock is
// attributed to the prior holder's session, not to userID.
func (c *Clock) Lock(ctx context.Context, userID int64) error {
	return c.session.Do(ctx, func(ctx context.Context, a *store.Account) error {
		db := c.session.Store()

		var reserved *store.Reservation
		if a.ActiveReservation != nil {
			r, err := db.Reservation(ctx, *a.ActiveReservation)
			if err != nil {
				return fmt.Errorf("could not load active reservation: %w", err)
			}
			if r.UserID != userID {
				return ErrReserved
			}
			reserved = r
		}

		if a.ActiveClockStub != nil {
			stub, err := db.ClockStub(ctx, *a.ActiveClockStub)
			if err != nil {
				return fmt.Errorf("could not load active clock stub: %w", err)
			}
			if stub.UserID == userID {
				return ErrAlreadyLocked
			}
			if reserved == nil {
				return ErrHeldByOther
			}
			// Reservation owner pre-empts the current holder.
			if err := db.CloseClockStub(ctx, stub.ID, time.Now()); err != nil {
				return fmt.Errorf("could not close pre-empted clock stub: %w", err)
			}
			if err := db.SetActiveClockStub(ctx, a.ID, nil); err != nil {
				return err
			}
		}

		stub, err := db.CreateClockStub(ctx, userID, time.Now())
		if err != nil {
			return fmt.Errorf("could not create clock stub: %w", err)
		}
		if err := db.SetActiveClockStub(ctx, a.ID, &stub.ID); err != nil {
			return fmt.Errorf("could not activate clock stub: %w", err)
		}
		return nil
	})
}

// Unlock releases the account. When by is non-nil it must match the active
// stub's owner; privileged callers (admin force-unlock, AFK timeout,
// pre-emption) pass nil to unlock unconditionally.
func (c *Clock) Unlock(ctx context.Context, by *int64) error {
	return c.session.Do(ctx, func(ctx context.Context, a *store.Account) error {
		db := c.session.Store()

		if a.ActiveClockStub == nil {
			return ErrNotLocked
		}
		stub, err := db.ClockStub(ctx, *a.ActiveClockStub)
		if err != nil {
			return fmt.Errorf("could not load active clock stub: %w", err)
		}
		if by != nil && *by != stub.UserID {
			return ErrHeldByOther
		}
		if err := db.CloseClockStub(ctx, stub.ID, time.Now()); err != nil {
			return fmt.Errorf("could not close clock stub: %w", err)
		}
		if err := db.SetActiveClockStub(ctx, a.ID, nil); err != nil {
			return fmt.Errorf("could not clear active clock stub: %w", err)
		}
		return nil
	})
}

// Touch records qualifying activity by userID, advancing the active stub's
// last-interaction time and clearing any pending AFK warning. It is a no-op
// when userID does not hold the account.
func (c *Clock) Touch(ctx context.Context, userID int64) error {
	return c.session.Do(ctx, func(ctx context.Context, a *store.Account) error {
		if a.ActiveClockStub == nil {
			return nil
		}
		db := c.session.Store()
		stub, err := db.ClockStub(ctx, *a.ActiveClockStub)
		if err != nil {
			return err
		}
		if stub.UserID != userID {
			return nil
		}
		return db.TouchClockStub(ctx, stub.ID, time.Now())
	})
}
