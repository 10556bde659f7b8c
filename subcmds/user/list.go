// Copyright (c) 2025 BVK Chaitanya

package user

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/subcmds"
	"github.com/visvasity/cli"
)

type List struct {
	subcmds.DataFlags
}

func (c *List) Purpose() string {
	return "Prints all registered traders"
}

func (c *List) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	return "list", fset, cli.CmdFunc(c.run)
}

func (c *List) run(ctx context.Context, args []string) error {
	dataDir, _, err := c.Resolve()
	if err != nil {
		return err
	}
	db, err := store.Open(subcmds.DatabasePath(dataDir))
	if err != nil {
		return err
	}
	defer db.Close()

	users, err := db.Users(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Fprintf(cli.Stdout(ctx), "%d\t%s\n", u.ID, u.Tag)
	}
	return nil
}
