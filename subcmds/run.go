// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bvk/shiftbot/binance"
	"github.com/bvk/shiftbot/clock"
	"github.com/bvk/shiftbot/config"
	"github.com/bvk/shiftbot/ctxutil"
	"github.com/bvk/shiftbot/exchange"
	"github.com/bvk/shiftbot/ledger"
	"github.com/bvk/shiftbot/payroll"
	"github.com/bvk/shiftbot/schedule"
	"github.com/bvk/shiftbot/server"
	"github.com/bvk/shiftbot/session"
	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/telegram"
	"github.com/bvk/shiftbot/trader"
	"github.com/nightlyone/lockfile"
	"github.com/visvasity/cli"
)

type Run struct {
	DataFlags

	restart         bool
	shutdownTimeout time.Duration
}

func (c *Run) Purpose() string {
	return "Runs the shiftbot service in foreground"
}

func (c *Run) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.BoolVar(&c.restart, "restart", false, "when true, kills any old instance")
	fset.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 30*time.Second, "max timeout for shutdown when restarting")
	return "run", fset, cli.CmdFunc(c.run)
}

func (c *Run) Description() string {
	return `

Command "run" starts the shiftbot service. The service connects to the
Telegram bot api, watches reservations and away users, and reconciles the
active buy/sell transaction against the exchange.

SECRETS FILE

Telegram bot credentials are read from a secrets file in JSON format, which
can be created with the "setup telegram" subcommand. An example secrets file
format is given below:

    {
        "telegram":{
            "token":"111111:AAA...",
            "owner":"username"
        }
    }

Exchange API keys are not part of the secrets file; they are stored as
accounts in the database by the "setup binance" subcommand.

`
}

func (c *Run) run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir, secretsPath, err := c.Resolve()
	if err != nil {
		return err
	}
	secrets, err := SecretsFromFile(secretsPath)
	if err != nil {
		return fmt.Errorf("could not load secrets file (run \"setup telegram\" first): %w", err)
	}
	if err := secrets.Check(); err != nil {
		return err
	}

	log.SetFlags(log.Flags() | log.Lmicroseconds)
	log.Printf("using data directory %s and secrets file %s", dataDir, secretsPath)

	lockPath := filepath.Join(dataDir, "shiftbot.lock")
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		if !c.restart {
			return fmt.Errorf("could not get lock on file %q: %w", lockPath, err)
		}
		owner, err := flock.GetOwner()
		if err != nil {
			return fmt.Errorf("could not get current owner of the lock file: %w", err)
		}
		if err := owner.Signal(os.Interrupt); err == nil {
			log.Printf("waiting for the previous instance to shutdown")
			if err := ctxutil.RetryTimeout(ctx, time.Second, c.shutdownTimeout, flock.TryLock); err != nil {
				if err := owner.Signal(os.Kill); err != nil {
					return fmt.Errorf("could not kill current owner of the lock file: %w", err)
				}
				ctxutil.Sleep(ctx, time.Millisecond)
			}
		}
		if err := flock.TryLock(); err != nil {
			return fmt.Errorf("could not get lock on file %q after killing previous instance: %w", lockPath, err)
		}
	}
	defer flock.Unlock()

	db, err := store.Open(DatabasePath(dataDir))
	if err != nil {
		return fmt.Errorf("could not open the database: %w", err)
	}
	defer db.Close()

	if err := config.Seed(ctx, db); err != nil {
		return err
	}
	cfg, err := config.New(ctx, db)
	if err != nil {
		return err
	}

	sess := session.New(db, NewExchange)
	clk := clock.New(sess)
	led := ledger.New(sess, cfg)
	defer led.Close()
	sched := schedule.New(sess, cfg)
	defer sched.Close()
	pay := payroll.New(db)
	trd := trader.New(sess, cfg, led)

	tgc, err := telegram.New(ctx, db, cfg, clk, trd, led, sched, pay, secrets.Telegram)
	if err != nil {
		return err
	}
	defer func() {
		if err := tgc.Close(context.Background()); err != nil {
			log.Printf("could not close telegram client (ignored): %v", err)
		}
	}()

	srv, err := server.New(nil /* opts */, sess, cfg, clk, led, sched, tgc)
	if err != nil {
		return err
	}
	defer srv.Close()

	log.Printf("started shiftbot service as telegram bot %q", tgc.BotUserName())
	tgc.Start(ctx)
	log.Printf("shiftbot service is shutting down")
	return nil
}

// NewExchange returns a binance client for the given account, pointed at the
// testnet when the account is marked so.
func NewExchange(a *store.Account) exchange.Exchange {
	opts := new(binance.Options)
	if a.Testnet {
		opts.RestURL = binance.TestnetRestURL
	}
	return binance.New(a.APIKey, a.APISecret, opts)
}
