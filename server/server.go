// Copyright (c) 2025 BVK Chaitanya

// Package server runs the background poll cluster: order reconciliation,
// AFK detection and the reservation tick, each on its own fixed-interval
// timer. Loops are independent; a stuck or failing tick in one never blocks
// the others, and a failed tick is simply retried on the next interval.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/shiftbot/clock"
	"github.com/bvk/shiftbot/config"
	"github.com/bvk/shiftbot/ctxutil"
	"github.com/bvk/shiftbot/ledger"
	"github.com/bvk/shiftbot/schedule"
	"github.com/bvk/shiftbot/session"
	"github.com/visvasity/topic"
)

// Notifier delivers out-of-band messages to users; the chat front end
// implements it.
type Notifier interface {
	// Notify sends a one-way message to the user.
	Notify(ctx context.Context, userID int64, text string) error

	// ConfirmPresence prompts the user to confirm they are still around and
	// waits up to timeout for a response. Returns false on timeout.
	ConfirmPresence(ctx context.Context, userID int64, timeout time.Duration) (bool, error)
}

type Options struct {
	ReconcileInterval   time.Duration
	AFKInterval         time.Duration
	ReservationInterval time.Duration
}

func (v *Options) setDefaults() {
	if v.ReconcileInterval == 0 {
		v.ReconcileInterval = 2 * time.Second
	}
	if v.AFKInterval == 0 {
		v.AFKInterval = time.Minute
	}
	if v.ReservationInterval == 0 {
		v.ReservationInterval = time.Minute
	}
}

type Server struct {
	opts Options

	session   *session.Session
	cfg       *config.Config
	clock     *clock.Clock
	ledger    *ledger.Ledger
	scheduler *schedule.Scheduler

	notifier Notifier

	cg ctxutil.CloseGroup
}

func New(opts *Options, s *session.Session, cfg *config.Config, c *clock.Clock, l *ledger.Ledger, sched *schedule.Scheduler, n Notifier) (*Server, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	v := &Server{
		opts:      *opts,
		session:   s,
		cfg:       cfg,
		clock:     c,
		ledger:    l,
		scheduler: sched,
		notifier:  n,
	}

	settlements, err := l.SettlementUpdates()
	if err != nil {
		return nil, err
	}
	alerts, err := sched.AlertUpdates()
	if err != nil {
		settlements.Close()
		return nil, err
	}

	v.cg.Go(v.reconcileLoop)
	v.cg.Go(v.afkLoop)
	v.cg.Go(v.reservationLoop)
	v.cg.Go(func(ctx context.Context) {
		defer settlements.Close()
		v.settlementNotifyLoop(ctx, settlements)
	})
	v.cg.Go(func(ctx context.Context) {
		defer alerts.Close()
		v.alertNotifyLoop(ctx, alerts)
	})
	return v, nil
}

func (s *Server) Close() {
	s.cg.Close()
}

func (s *Server) reconcileLoop(ctx context.Context) {
	for ctx.Err() == nil {
		tctx, cancel := context.WithTimeout(ctx, s.opts.ReconcileInterval)
		if err := s.ledger.Reconcile(tctx); err != nil && ctx.Err() == nil {
			slog.Error("order reconcile tick has failed (will retry)", "err", err)
		}
		cancel()
		ctxutil.Sleep(ctx, s.opts.ReconcileInterval)
	}
}

func (s *Server) reservationLoop(ctx context.Context) {
	for ctx.Err() == nil {
		tctx, cancel := context.WithTimeout(ctx, s.opts.ReservationInterval)
		if err := s.scheduler.Tick(tctx); err != nil && ctx.Err() == nil {
			slog.Error("reservation tick has failed (will retry)", "err", err)
		}
		cancel()
		ctxutil.Sleep(ctx, s.opts.ReservationInterval)
	}
}

func (s *Server) afkLoop(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.afkCheck(ctx); err != nil && ctx.Err() == nil {
			slog.Error("afk check has failed (will retry)", "err", err)
		}
		ctxutil.Sleep(ctx, s.opts.AFKInterval)
	}
}

// afkCheck prompts the current lock holder when their session has been idle
// beyond the warn threshold. The warn flag is set before the prompt so that
// subsequent ticks never issue duplicates; the bounded wait runs in its own
// goroutine and never holds the account mutex.
func (s *Server) afkCheck(ctx context.Context) error {
	stub, err := s.clock.Status(ctx)
	if err != nil {
		return err
	}
	if stub == nil || stub.AFKWarned {
		return nil
	}

	snap := s.cfg.Snapshot()
	if !snap.BoolOrDefault("notify", "afk", true) {
		// Nobody can be prompted, so idle sessions are left alone.
		return nil
	}
	warnAfter := time.Duration(snap.IntOrDefault("schedule", "afk_warn_min", 15)) * time.Minute
	if time.Since(stub.LastInteraction) <= warnAfter {
		return nil
	}
	if err := s.session.Store().SetAFKWarned(ctx, stub.ID, true); err != nil {
		return err
	}

	timeout := time.Duration(snap.IntOrDefault("schedule", "afk_timeout_min", 5)) * time.Minute
	s.cg.Go(func(ctx context.Context) {
		s.afkWait(ctx, stub.ID, stub.UserID, timeout)
	})
	return nil
}

func (s *Server) afkWait(ctx context.Context, stubID, userID int64, timeout time.Duration) {
	ok, err := s.notifier.ConfirmPresence(ctx, userID, timeout)
	if err != nil {
		// The prompt never reached the user, so an unlock is not justified.
		// Clear the warn flag and let a later tick try again.
		if ctx.Err() == nil {
			slog.Error("could not deliver afk prompt", "user", userID, "err", err)
			if err := s.session.Store().SetAFKWarned(ctx, stubID, false); err != nil {
				slog.Error("could not clear afk warn flag", "stub", stubID, "err", err)
			}
		}
		return
	}
	if ok {
		if err := s.clock.Touch(ctx, userID); err != nil {
			slog.Error("could not record afk confirmation", "user", userID, "err", err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	// Re-check before force-unlocking: the user may have acted through some
	// other command while we were waiting.
	stub, err := s.clock.Status(ctx)
	if err != nil || stub == nil || stub.ID != stubID || !stub.AFKWarned {
		return
	}
	if err := s.clock.Unlock(ctx, nil); err != nil {
		slog.Error("could not force-unlock idle session", "user", userID, "err", err)
		return
	}
	slog.Info("force-unlocked idle session", "user", userID, "stub", stubID)
	if err := s.notifier.Notify(ctx, userID, "You have been clocked out due to inactivity."); err != nil && ctx.Err() == nil {
		slog.Error("could not deliver afk unlock notice", "user", userID, "err", err)
	}
}

func (s *Server) settlementNotifyLoop(ctx context.Context, updates *topic.Receiver[*ledger.Event]) {
	ch, err := topic.ReceiveCh(updates)
	if err != nil {
		slog.Error("could not receive settlement updates", "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if !snapshotBool(s.cfg, "notify", "order_status", true) {
				continue
			}
			var text string
			switch {
			case event.Ready && event.Side == "BUY":
				text = "Ready to buy again."
			case event.Ready:
				text = "Ready to sell again."
			case event.Closed:
				text = fmt.Sprintf("Sell leg settled at %s; round trip is complete.", event.AvgPrice)
			default:
				text = fmt.Sprintf("Buy leg settled at %s.", event.AvgPrice)
			}
			if err := s.notifier.Notify(ctx, event.UserID, text); err != nil && ctx.Err() == nil {
				slog.Error("could not deliver settlement notice", "user", event.UserID, "err", err)
			}
		}
	}
}

func (s *Server) alertNotifyLoop(ctx context.Context, updates *topic.Receiver[*schedule.Alert]) {
	ch, err := topic.ReceiveCh(updates)
	if err != nil {
		slog.Error("could not receive reservation alerts", "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-ch:
			if !snapshotBool(s.cfg, "notify", "reservations", true) {
				continue
			}
			r := alert.Reservation
			text := fmt.Sprintf("Your reservation starts at %s.", r.StartTime.Format(time.RFC1123))
			if err := s.notifier.Notify(ctx, r.UserID, text); err != nil && ctx.Err() == nil {
				slog.Error("could not deliver reservation alert", "user", r.UserID, "err", err)
			}
		}
	}
}

func snapshotBool(cfg *config.Config, section, key string, def bool) bool {
	return cfg.Snapshot().BoolOrDefault(section, key, def)
}
