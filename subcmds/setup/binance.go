// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bvk/shiftbot/binance"
	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/subcmds"
	"github.com/visvasity/cli"
	"golang.org/x/term"
)

type Binance struct {
	subcmds.DataFlags

	skipTesting bool

	name    string
	testnet bool
	apiKey  string
	selects bool
}

func (c *Binance) Purpose() string {
	return "Adds a binance account to the database"
}

func (c *Binance) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("binance", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.StringVar(&c.name, "name", "", "unique name for the account")
	fset.BoolVar(&c.testnet, "testnet", false, "when true, account points to the spot testnet")
	fset.StringVar(&c.apiKey, "api-key", "", "binance API key; prompted when empty")
	fset.BoolVar(&c.selects, "select", false, "when true, marks the new account as selected")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "binance", fset, cli.CmdFunc(c.run)
}

func (c *Binance) Description() string {
	return `

Command "binance" stores a binance spot account's API keys in the database.
The API secret is always prompted for and never echoed. The first account is
marked selected automatically; use the /account chat command or re-run with
--select to switch later.

  $ shiftbot setup binance --name=main
  $ shiftbot setup binance --name=paper --testnet --select

`
}

func (c *Binance) run(ctx context.Context, args []string) error {
	if len(c.name) == 0 {
		return fmt.Errorf("account name is required: %w", os.ErrInvalid)
	}
	dataDir, _, err := c.Resolve()
	if err != nil {
		return err
	}

	apiKey := c.apiKey
	if len(apiKey) == 0 {
		fmt.Print("API Key: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return err
		}
		apiKey = strings.TrimSpace(line)
	}
	fmt.Print("API Secret: ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("could not read the api secret: %w", err)
	}
	apiSecret := strings.TrimSpace(string(secret))
	if len(apiKey) == 0 || len(apiSecret) == 0 {
		return fmt.Errorf("api key and secret are required: %w", os.ErrInvalid)
	}

	if !c.skipTesting {
		opts := new(binance.Options)
		if c.testnet {
			opts.RestURL = binance.TestnetRestURL
		}
		client := binance.New(apiKey, apiSecret, opts)
		if _, err := client.GetBalance(ctx, "USDT"); err != nil {
			return fmt.Errorf("could not query account balance with the given keys: %w", err)
		}
	}

	db, err := store.Open(subcmds.DatabasePath(dataDir))
	if err != nil {
		return err
	}
	defer db.Close()

	accounts, err := db.Accounts(ctx)
	if err != nil {
		return err
	}
	if _, err := db.AddAccount(ctx, c.name, c.testnet, apiKey, apiSecret); err != nil {
		return err
	}
	if c.selects || len(accounts) == 0 {
		if err := db.SelectAccount(ctx, c.name); err != nil {
			return err
		}
	}
	fmt.Fprintf(cli.Stdout(ctx), "added account %q\n", c.name)
	return nil
}
