// Copyright (c) 2025 BVK Chaitanya

// Package schedule manages reservations over the shared trading account:
// slot suggestion, conflict-checked creation and the periodic tick that
// alerts, activates and expires the chronologically next reservation.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/bvk/shiftbot/config"
	"github.com/bvk/shiftbot/session"
	"github.com/bvk/shiftbot/store"
	"github.com/visvasity/topic"
)

// Horizon is how far ahead open slots are suggested.
const Horizon = 48 * time.Hour

// TimeSlot is one fixed-width slot in the suggestion listing. Reservation
// is nil for an open slot.
type TimeSlot struct {
	Start       time.Time
	Reservation *store.Reservation
}

// Alert announces that a reservation's window is approaching.
type Alert struct {
	Reservation *store.Reservation
}

type Scheduler struct {
	session *session.Session

	cfg *config.Config

	alertTopic *topic.Topic[*Alert]
}

func New(s *session.Session, cfg *config.Config) *Scheduler {
	return &Scheduler{
		session:    s,
		cfg:        cfg,
		alertTopic: topic.New[*Alert](),
	}
}

func (s *Scheduler) Close() {
	s.alertTopic.Close()
}

// AlertUpdates subscribes to pre-reservation alerts raised by Tick.
func (s *Scheduler) AlertUpdates() (*topic.Receiver[*Alert], error) {
	return topic.Subscribe(s.alertTopic, 0, false /* includeRecent */)
}

func (s *Scheduler) interval() time.Duration {
	v := s.cfg.Snapshot().IntOrDefault("schedule", "reservation_interval_min", 15)
	return time.Duration(v) * time.Minute
}

// OpenTimeSlots enumerates fixed-width slots from after (or now, truncated
// to the interval) through the horizon, marking each one open or reserved.
// This listing is a UI suggestion only; CreateReservation is the authority
// on conflicts.
func (s *Scheduler) OpenTimeSlots(ctx context.Context, after time.Time) ([]TimeSlot, error) {
	reservations, err := s.session.Store().Reservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list reservations: %w", err)
	}

	width := s.interval()
	if after.IsZero() {
		after = time.Now()
	}
	start := after.Truncate(width)

	var slots []TimeSlot
	for at := start; at.Before(start.Add(Horizon)); at = at.Add(width) {
		slot := TimeSlot{Start: at}
		for _, r := range reservations {
			if !at.Before(r.StartTime) && at.Before(r.EndTime) {
				slot.Reservation = r
				break
			}
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// CreateReservation reserves [start, end) for the user. Returns false when
// the window overlaps an existing reservation; touching windows do not
// overlap. The false return is an availability signal, not an error.
func (s *Scheduler) CreateReservation(ctx context.Context, userID int64, start, end time.Time) (bool, error) {
	var created bool
	err := s.session.Do(ctx, func(ctx context.Context, a *store.Account) error {
		db := s.session.Store()
		reservations, err := db.Reservations(ctx)
		if err != nil {
			return fmt.Errorf("could not list reservations: %w", err)
		}
		for _, r := range reservations {
			if r.StartTime.Before(end) && r.EndTime.After(start) {
				return nil
			}
		}
		if _, err := db.CreateReservation(ctx, userID, start, end); err != nil {
			return fmt.Errorf("could not create reservation: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}

// Cancel deletes a reservation. Ownership is the caller's responsibility.
func (s *Scheduler) Cancel(ctx context.Context, id int64) error {
	return s.session.Do(ctx, func(ctx context.Context, a *store.Account) error {
		if a.ActiveReservation != nil && *a.ActiveReservation == id {
			if err := s.session.Store().SetActiveReservation(ctx, a.ID, nil); err != nil {
				return err
			}
		}
		return s.session.Store().DeleteReservation(ctx, id)
	})
}

// Tick advances the chronologically next reservation through its alert,
// lock and expiry windows. It is idempotent at a fixed instant and a no-op
// when no reservations exist.
func (s *Scheduler) Tick(ctx context.Context) error {
	return s.tickAt(ctx, time.Now())
}

func (s *Scheduler) tickAt(ctx context.Context, now time.Time) error {
	return s.session.Do(ctx, func(ctx context.Context, a *store.Account) error {
		db := s.session.Store()
		next, err := db.NextReservation(ctx)
		if err != nil {
			return fmt.Errorf("could not find next reservation: %w", err)
		}
		if next == nil {
			return nil
		}

		snap := s.cfg.Snapshot()
		alertLead := time.Duration(snap.IntOrDefault("schedule", "reservation_alert_min", 15)) * time.Minute
		lockGrace := time.Duration(snap.IntOrDefault("schedule", "reservation_lock_min", 15)) * time.Minute

		// The lock window has fully elapsed: release and drop it.
		if !now.Before(next.StartTime.Add(lockGrace)) {
			if a.ActiveReservation != nil && *a.ActiveReservation == next.ID {
				if err := db.SetActiveReservation(ctx, a.ID, nil); err != nil {
					return err
				}
			}
			return db.DeleteReservation(ctx, next.ID)
		}

		if !next.Alerted && !now.Before(next.StartTime.Add(-alertLead)) {
			if err := db.MarkReservationAlerted(ctx, next.ID); err != nil {
				return err
			}
			next.Alerted = true
			sendCh, _ := topic.SendCh(s.alertTopic)
			sendCh <- &Alert{Reservation: next}
		}

		// Inside the lock window the reservation pre-empts the account.
		if !now.Before(next.StartTime) {
			if a.ActiveReservation == nil || *a.ActiveReservation != next.ID {
				return db.SetActiveReservation(ctx, a.ID, &next.ID)
			}
		}
		return nil
	})
}
