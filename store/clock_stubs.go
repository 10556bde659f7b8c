// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ClockStub is one continuous lock-holding session. EndTime is nil while the
// session is active; closed stubs are immutable.
type ClockStub struct {
	ID        int64
	StartTime time.Time
	EndTime   *time.Time
	UserID    int64

	LastInteraction time.Time
	AFKWarned       bool
}

const clockStubColumns = `id, start_time, end_time, user_id, last_interaction, afk_warn_flag`

func scanClockStub(row interface{ Scan(...any) error }) (*ClockStub, error) {
	c := new(ClockStub)
	var start, last int64
	var end sql.NullInt64
	if err := row.Scan(&c.ID, &start, &end, &c.UserID, &last, &c.AFKWarned); err != nil {
		return nil, err
	}
	c.StartTime = loadTime(start)
	c.EndTime = loadNullTime(end)
	c.LastInteraction = loadTime(last)
	return c, nil
}

// CreateClockStub creates an open session for the user starting at the given
// instant, with last_interaction initialized to the same instant.
func (s *Store) CreateClockStub(ctx context.Context, userID int64, at time.Time) (*ClockStub, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO clock_stubs (start_time, user_id, last_interaction) VALUES (?, ?, ?)`,
		storeTime(at), userID, storeTime(at))
	if err != nil {
		return nil, fmt.Errorf("could not create clock stub: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.ClockStub(ctx, id)
}

func (s *Store) ClockStub(ctx context.Context, id int64) (*ClockStub, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clockStubColumns+` FROM clock_stubs WHERE id = ?`, id)
	c, err := scanClockStub(row)
	if err != nil {
		return nil, fmt.Errorf("could not load clock stub %d: %w", id, err)
	}
	return c, nil
}

// CloseClockStub sets the end time on an open stub.
func (s *Store) CloseClockStub(ctx context.Context, id int64, end time.Time) error {
	if err := s.execOne(ctx,
		`UPDATE clock_stubs SET end_time = ? WHERE id = ? AND end_time IS NULL`,
		storeTime(end), id); err != nil {
		return fmt.Errorf("could not close clock stub %d: %w", id, err)
	}
	return nil
}

// TouchClockStub records qualifying activity: last_interaction is advanced
// and any pending AFK warning is cleared.
func (s *Store) TouchClockStub(ctx context.Context, id int64, at time.Time) error {
	if err := s.execOne(ctx,
		`UPDATE clock_stubs SET last_interaction = ?, afk_warn_flag = 0 WHERE id = ?`,
		storeTime(at), id); err != nil {
		return fmt.Errorf("could not touch clock stub %d: %w", id, err)
	}
	return nil
}

func (s *Store) SetAFKWarned(ctx context.Context, id int64, warned bool) error {
	if err := s.execOne(ctx,
		`UPDATE clock_stubs SET afk_warn_flag = ? WHERE id = ?`, warned, id); err != nil {
		return fmt.Errorf("could not set afk flag on clock stub %d: %w", id, err)
	}
	return nil
}

// ClockStubs returns the user's stubs whose start time falls in
// [begin, end), oldest first. Zero begin/end leave that bound open.
func (s *Store) ClockStubs(ctx context.Context, userID int64, begin, end time.Time) ([]*ClockStub, error) {
	query := `SELECT ` + clockStubColumns + ` FROM clock_stubs WHERE user_id = ?`
	args := []any{userID}
	if !begin.IsZero() {
		query += ` AND start_time >= ?`
		args = append(args, storeTime(begin))
	}
	if !end.IsZero() {
		query += ` AND start_time < ?`
		args = append(args, storeTime(end))
	}
	query += ` ORDER BY start_time ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not list clock stubs: %w", err)
	}
	defer rows.Close()

	var stubs []*ClockStub
	for rows.Next() {
		c, err := scanClockStub(rows)
		if err != nil {
			return nil, err
		}
		stubs = append(stubs, c)
	}
	return stubs, rows.Err()
}
