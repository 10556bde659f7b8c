// Copyright (c) 2025 BVK Chaitanya

package main

import (
	"context"
	"log"
	"os"

	"github.com/bvk/shiftbot/subcmds"
	"github.com/bvk/shiftbot/subcmds/configure"
	"github.com/bvk/shiftbot/subcmds/setup"
	"github.com/bvk/shiftbot/subcmds/user"
	"github.com/visvasity/cli"
)

func main() {
	setupCmds := []cli.Command{
		new(setup.Telegram),
		new(setup.Binance),
	}

	configCmds := []cli.Command{
		new(configure.Get),
		new(configure.Set),
		new(configure.List),
	}

	userCmds := []cli.Command{
		new(user.Add),
		new(user.List),
	}

	cmds := []cli.Command{
		new(subcmds.Run),
		new(subcmds.Status),
		cli.NewGroup("setup", "Configure telegram and exchange credentials", setupCmds...),
		cli.NewGroup("config", "View/update settings directly", configCmds...),
		cli.NewGroup("user", "Manage registered traders", userCmds...),
	}
	if err := cli.Run(context.Background(), cmds, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
