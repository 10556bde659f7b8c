// Copyright (c) 2025 BVK Chaitanya

package configure

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/subcmds"
	"github.com/visvasity/cli"
)

type Get struct {
	subcmds.DataFlags
}

func (c *Get) Purpose() string {
	return "Prints one config setting"
}

func (c *Get) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("get", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	return "get", fset, cli.CmdFunc(c.run)
}

func (c *Get) run(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("needs two (section, key) arguments")
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

	row, err := db.Config(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if row.Value == nil {
		fmt.Fprintf(cli.Stdout(ctx), "%s/%s is not set\n", row.Section, row.Key)
		return nil
	}
	fmt.Fprintf(cli.Stdout(ctx), "%s\n", *row.Value)
	return nil
}
