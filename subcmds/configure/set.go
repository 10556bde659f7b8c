// Copyright (c) 2025 BVK Chaitanya

package configure

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/shiftbot/config"
	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/subcmds"
	"github.com/visvasity/cli"
)

type Set struct {
	subcmds.DataFlags
}

func (c *Set) Purpose() string {
	return "Updates one config setting"
}

func (c *Set) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("set", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	return "set", fset, cli.CmdFunc(c.run)
}

func (c *Set) Description() string {
	return `

Command "set" updates one setting in the database, with the same type
checking as the /setconfig chat command. A running service picks up the
change only through /setconfig; restart the service after local edits.

  $ shiftbot config set trading symbol ETHUSDT

`
}

func (c *Set) run(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("needs three (section, key, value) arguments")
	}
	dataDir, _, err := c.Resolve()
	if err != nil {
		return err
	}
	db, err := store.Open(subcmds.DatabasePath(dataDir))
	if err != nil {
		return err
	}
	defer db.Close()

	cfg, err := config.New(ctx, db)
	if err != nil {
		return err
	}
	return cfg.Set(ctx, args[0], args[1], args[2])
}
