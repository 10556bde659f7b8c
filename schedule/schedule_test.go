// Copyright (c) 2025 BVK Chaitanya

package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/bvk/shiftbot/config"
	"github.com/bvk/shiftbot/session"
	"github.com/bvk/shiftbot/store"
	"github.com/visvasity/topic"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.AddAccount(ctx, "main", true, "key", "secret"); err != nil {
		t.Fatal(err)
	}
	if err := db.SelectAccount(ctx, "main"); err != nil {
		t.Fatal(err)
	}
	if err := config.Seed(ctx, db); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	s := New(session.New(db, nil), cfg)
	t.Cleanup(s.Close)
	return s, db
}

func TestCreateReservationOverlap(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	day := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	ok, err := s.CreateReservation(ctx, 1, day, day.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first reservation was rejected")
	}

	// Contained window overlaps.
	ok, err = s.CreateReservation(ctx, 2, day.Add(30*time.Minute), day.Add(45*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("overlapping reservation was accepted")
	}

	// Touching windows do not overlap.
	ok, err = s.CreateReservation(ctx, 2, day.Add(time.Hour), day.Add(90*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("touching reservation was rejected")
	}
}

func TestOpenTimeSlots(t *testing.T) {
	ctx := context.Background()
	s, db := newTestScheduler(t)

	base := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	if _, err := db.CreateReservation(ctx, 1, base.Add(30*time.Minute), base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	slots, err := s.OpenTimeSlots(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	if want := int(Horizon / (15 * time.Minute)); len(slots) != want {
		t.Fatalf("slot count: got %d, want %d", len(slots), want)
	}
	for i, slot := range slots {
		if !slot.Start.Equal(base.Add(time.Duration(i) * 15 * time.Minute)) {
			t.Fatalf("slot %d starts at %v", i, slot.Start)
		}
	}
	// Slots 2 and 3 fall inside the reserved window.
	for i, reserved := range []bool{false, false, true, true, false} {
		if got := slots[i].Reservation != nil; got != reserved {
			t.Fatalf("slot %d reserved: got %v, want %v", i, got, reserved)
		}
	}
}

func TestTickNoReservations(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	if err := s.Tick(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestTickLifecycle(t *testing.T) {
	ctx := context.Background()
	s, db := newTestScheduler(t)

	updates, err := s.AlertUpdates()
	if err != nil {
		t.Fatal(err)
	}
	defer updates.Close()
	alerts, err := topic.ReceiveCh(updates)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	r, err := db.CreateReservation(ctx, 1, start, start.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	account := func() *store.Account {
		a, err := db.SelectedAccount(ctx)
		if err != nil {
			t.Fatal(err)
		}
		return a
	}

	// Too early: nothing happens.
	if err := s.tickAt(ctx, start.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if a := account(); a.ActiveReservation != nil {
		t.Fatal("reservation activated too early")
	}

	// Alert window: exactly one alert, even across repeated ticks.
	for i := 0; i < 2; i++ {
		if err := s.tickAt(ctx, start.Add(-10*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case alert := <-alerts:
		if alert.Reservation.ID != r.ID {
			t.Fatalf("alert for reservation %d, want %d", alert.Reservation.ID, r.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no alert received")
	}
	select {
	case <-alerts:
		t.Fatal("duplicate alert received")
	case <-time.After(100 * time.Millisecond):
	}

	// Lock window: the reservation pre-empts the account; repeated ticks
	// leave the same state.
	for i := 0; i < 2; i++ {
		if err := s.tickAt(ctx, start.Add(5*time.Minute)); err != nil {
			t.Fatal(err)
		}
		a := account()
		if a.ActiveReservation == nil || *a.ActiveReservation != r.ID {
			t.Fatalf("tick %d: reservation is not active", i)
		}
	}

	// Past the grace period: released and deleted.
	if err := s.tickAt(ctx, start.Add(20*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if a := account(); a.ActiveReservation != nil {
		t.Fatal("reservation still active after expiry")
	}
	if left, err := db.Reservations(ctx); err != nil || len(left) != 0 {
		t.Fatalf("reservation not deleted: %d left (err %v)", len(left), err)
	}
}
