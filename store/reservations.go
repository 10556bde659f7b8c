// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Reservation is a user's claim on the account for [StartTime, EndTime).
type Reservation struct {
	ID        int64
	StartTime time.Time
	EndTime   time.Time
	Alerted   bool
	UserID    int64
}

const reservationColumns = `id, start_time, end_time, alerted, user_id`

func scanReservation(row interface{ Scan(...any) error }) (*Reservation, error) {
	r := new(Reservation)
	var start, end int64
	if err := row.Scan(&r.ID, &start, &end, &r.Alerted, &r.UserID); err != nil {
		return nil, err
	}
	r.StartTime = loadTime(start)
	r.EndTime = loadTime(end)
	return r, nil
}

func (s *Store) CreateReservation(ctx context.Context, userID int64, start, end time.Time) (*Reservation, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reservations (start_time, end_time, user_id) VALUES (?, ?, ?)`,
		storeTime(start), storeTime(end), userID)
	if err != nil {
		return nil, fmt.Errorf("could not create reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Reservation(ctx, id)
}

func (s *Store) Reservation(ctx context.Context, id int64) (*Reservation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if err != nil {
		return nil, fmt.Errorf("could not load reservation %d: %w", id, err)
	}
	return r, nil
}

// Reservations returns all reservations in chronological order.
func (s *Store) Reservations(ctx context.Context) ([]*Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations ORDER BY start_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("could not list reservations: %w", err)
	}
	defer rows.Close()

	var rs []*Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, rows.Err()
}

// NextReservation returns the chronologically-first reservation or nil when
// none exist.
func (s *Store) NextReservation(ctx context.Context) (*Reservation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations ORDER BY start_time ASC LIMIT 1`)
	r, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not load next reservation: %w", err)
	}
	return r, nil
}

func (s *Store) MarkReservationAlerted(ctx context.Context, id int64) error {
	if err := s.execOne(ctx, `UPDATE reservations SET alerted = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("could not mark reservation %d alerted: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteReservation(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("could not delete reservation %d: %w", id, err)
	}
	return nil
}
