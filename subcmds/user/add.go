// Copyright (c) 2025 BVK Chaitanya

package user

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/subcmds"
	"github.com/visvasity/cli"
)

type Add struct {
	subcmds.DataFlags
}

func (c *Add) Purpose() string {
	return "Registers a telegram user as a trader"
}

func (c *Add) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("add", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	return "add", fset, cli.CmdFunc(c.run)
}

func (c *Add) Description() string {
	return `

Command "add" registers a telegram user, identified by the numeric telegram
user id, so that the bot accepts trading commands from them. The tag is the
short name used in summaries.

  $ shiftbot user add 123456789 alice

`
}

func (c *Add) run(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("needs two (user-id, tag) arguments")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", args[0], err)
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
	return db.AddUser(ctx, id, args[1])
}
