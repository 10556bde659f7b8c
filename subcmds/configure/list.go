// Copyright (c) 2025 BVK Chaitanya

package configure

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/subcmds"
	"github.com/visvasity/cli"
)

type List struct {
	subcmds.DataFlags

	section string
}

func (c *List) Purpose() string {
	return "Prints all config settings"
}

func (c *List) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.StringVar(&c.section, "section", "", "when set, only this section is printed")
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

	rows, err := db.Configs(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cli.Stdout(ctx), 0, 8, 2, ' ', 0)
	for _, row := range rows {
		if len(c.section) != 0 && row.Section != c.section {
			continue
		}
		value := "(unset)"
		if row.Value != nil {
			value = *row.Value
		}
		fmt.Fprintf(tw, "%s/%s\t%s\t%s\n", row.Section, row.Key, value, row.Description)
	}
	return tw.Flush()
}
