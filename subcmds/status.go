// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/bvk/shiftbot/ledger"
	"github.com/bvk/shiftbot/store"
	"github.com/visvasity/cli"
)

type Status struct {
	DataFlags
}

func (c *Status) Purpose() string {
	return "Prints the account lock and transaction state"
}

func (c *Status) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	return "status", fset, cli.CmdFunc(c.run)
}

func (c *Status) run(ctx context.Context, args []string) error {
	dataDir, _, err := c.Resolve()
	if err != nil {
		return err
	}
	db, err := store.Open(DatabasePath(dataDir))
	if err != nil {
		return err
	}
	defer db.Close()

	stdout := cli.Stdout(ctx)
	a, err := db.SelectedAccount(ctx)
	if err != nil {
		if errors.Is(err, store.ErrAccountMissing) {
			fmt.Fprintf(stdout, "no account is selected; run \"setup binance\" first\n")
			return nil
		}
		return err
	}
	kind := "live"
	if a.Testnet {
		kind = "testnet"
	}
	fmt.Fprintf(stdout, "account: %s (%s)\n", a.Name, kind)

	if a.ActiveClockStub == nil {
		fmt.Fprintf(stdout, "lock: free\n")
	} else {
		stub, err := db.ClockStub(ctx, *a.ActiveClockStub)
		if err != nil {
			return err
		}
		minutes := int(time.Since(stub.StartTime).Minutes())
		fmt.Fprintf(stdout, "lock: held by user %d for %d minutes\n", stub.UserID, minutes)
	}

	if a.ActiveTransaction == nil {
		fmt.Fprintf(stdout, "transaction: none\n")
	} else {
		t, err := db.Transaction(ctx, *a.ActiveTransaction)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "transaction: %d (%s)\n", t.ID, ledger.PhaseOf(t))
	}

	next, err := db.NextReservation(ctx)
	if err != nil {
		return err
	}
	if next == nil {
		fmt.Fprintf(stdout, "next reservation: none\n")
	} else {
		fmt.Fprintf(stdout, "next reservation: %d by user %d at %s\n",
			next.ID, next.UserID, next.StartTime.Format(time.DateTime))
	}
	return nil
}
