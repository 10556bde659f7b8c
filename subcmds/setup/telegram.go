// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/bvk/shiftbot/clock"
	"github.com/bvk/shiftbot/config"
	"github.com/bvk/shiftbot/ledger"
	"github.com/bvk/shiftbot/payroll"
	"github.com/bvk/shiftbot/schedule"
	"github.com/bvk/shiftbot/session"
	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/subcmds"
	"github.com/bvk/shiftbot/telegram"
	"github.com/bvk/shiftbot/trader"
	"github.com/visvasity/cli"
)

type Telegram struct {
	subcmds.DataFlags

	skipTesting bool

	ownerID  string
	adminID  string
	botToken string
}

func (c *Telegram) Purpose() string {
	return "Configures the Telegram bot credentials"
}

func (c *Telegram) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("telegram", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.StringVar(&c.ownerID, "owner-id", "", "Owner's telegram username")
	fset.StringVar(&c.adminID, "admin-id", "", "Administrator's telegram username")
	fset.StringVar(&c.botToken, "bot-token", "", "Telegram bot's authentication token")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "telegram", fset, cli.CmdFunc(c.run)
}

func (c *Telegram) Description() string {
	return `

Command "telegram" configures the Telegram bot that mediates access to the
shared exchange account. Register a bot with BotFather to get the bot token.

  $ shiftbot setup telegram --owner-id=username --bot-token=111111:AAA...

`
}

func (c *Telegram) run(ctx context.Context, args []string) error {
	_, secretsPath, err := c.Resolve()
	if err != nil {
		return err
	}

	secrets, err := subcmds.SecretsFromFile(secretsPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		secrets = new(subcmds.Secrets)
	}

	secrets.Telegram = &telegram.Secrets{
		OwnerID:  c.ownerID,
		AdminID:  c.adminID,
		BotToken: c.botToken,
	}
	if err := secrets.Check(); err != nil {
		return err
	}

	if !c.skipTesting {
		// Bring the bot up against a throwaway store; a bad token fails here.
		db, err := store.Open(":memory:")
		if err != nil {
			return err
		}
		defer db.Close()
		if err := config.Seed(ctx, db); err != nil {
			return err
		}
		cfg, err := config.New(ctx, db)
		if err != nil {
			return err
		}
		sess := session.New(db, subcmds.NewExchange)
		led := ledger.New(sess, cfg)
		defer led.Close()
		sched := schedule.New(sess, cfg)
		defer sched.Close()
		client, err := telegram.New(ctx, db, cfg, clock.New(sess), trader.New(sess, cfg, led), led, sched, payroll.New(db), secrets.Telegram)
		if err != nil {
			return fmt.Errorf("could not connect with the given bot token: %w", err)
		}
		fmt.Fprintf(cli.Stdout(ctx), "verified bot token for %q\n", client.BotUserName())
		if err := client.Close(ctx); err != nil {
			return err
		}
	}

	return secrets.WriteFile(secretsPath)
}
