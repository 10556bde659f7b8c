// Copyright (c) 2025 BVK Chaitanya

package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bvk/shiftbot/ledger"
	"github.com/bvk/shiftbot/timerange"
	"github.com/shopspring/decimal"
	"github.com/visvasity/cli"
)

var start = time.Now()

func (c *Client) allCommands() []*Command {
	return []*Command{
		{Name: "lock", Purpose: "Clock in and claim the trading account", Handler: c.cmdLock},
		{Name: "unlock", Purpose: "Clock out and release the trading account", Handler: c.cmdUnlock},
		{Name: "status", Purpose: "Show the account holder and transaction state", Handler: c.cmdStatus},
		{Name: "buy", Purpose: "Buy with the quote balance: /buy [price] [pct]", Handler: c.cmdBuy},
		{Name: "sell", Purpose: "Sell the base balance: /sell [price]", Handler: c.cmdSell},
		{Name: "autobuy", Purpose: "Market buy, then limit sell at avg+offset: /autobuy <offset>", Handler: c.cmdAutoBuy},
		{Name: "cancel", Purpose: "Cancel the most recent open order", Handler: c.cmdCancel},
		{Name: "balance", Purpose: "Show base and quote balances", Handler: c.cmdBalance},
		{Name: "price", Purpose: "Show the current ticker price", Handler: c.cmdPrice},
		{Name: "orders", Purpose: "List the active transaction's orders", Handler: c.cmdOrders},
		{Name: "reserve", Purpose: "Reserve a window: /reserve <YYYY/MM/DD> <HH:MM> <minutes>", Handler: c.cmdReserve},
		{Name: "reservations", Purpose: "List upcoming slots and reservations", Handler: c.cmdReservations},
		{Name: "unreserve", Purpose: "Cancel your reservation: /unreserve <id>", Handler: c.cmdUnreserve},
		{Name: "summary", Purpose: "Pay summary: /summary <YYYY/MM/DD|all>", Handler: c.cmdSummary},
		{Name: "uptime", Purpose: "Print bot uptime", Handler: c.cmdUptime},
		{Name: "adduser", Purpose: "Register a user: /adduser <id> <tag>", AdminOnly: true, Handler: c.cmdAddUser},
		{Name: "forceunlock", Purpose: "Force-release the account lock", AdminOnly: true, Handler: c.cmdForceUnlock},
		{Name: "setconfig", Purpose: "Change a setting: /setconfig <section> <key> <value>", AdminOnly: true, Handler: c.cmdSetConfig},
		{Name: "listconfig", Purpose: "List settings: /listconfig [section]", AdminOnly: true, Handler: c.cmdListConfig},
		{Name: "account", Purpose: "List accounts or select one: /account [name]", AdminOnly: true, Handler: c.cmdAccount},
	}
}

func (c *Client) location() *time.Location {
	name, ok := c.cfg.Snapshot().String("schedule", "timezone")
	if !ok {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Client) userTag(ctx context.Context, id int64) string {
	if u, err := c.db.User(ctx, id); err == nil {
		return u.Tag
	}
	return strconv.FormatInt(id, 10)
}

func (c *Client) cmdLock(ctx context.Context, args []string) error {
	if err := c.clock.Lock(ctx, sender(ctx).ID); err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "You are clocked in; the account is yours.")
	return nil
}

func (c *Client) cmdUnlock(ctx context.Context, args []string) error {
	id := sender(ctx).ID
	if err := c.clock.Unlock(ctx, &id); err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "You are clocked out.")
	return nil
}

func (c *Client) cmdForceUnlock(ctx context.Context, args []string) error {
	if err := c.clock.Unlock(ctx, nil); err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "The account lock has been released.")
	return nil
}

func (c *Client) cmdStatus(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)

	stub, err := c.clock.Status(ctx)
	if err != nil {
		return err
	}
	if stub == nil {
		fmt.Fprintln(stdout, "Nobody holds the account.")
	} else {
		minutes := int(time.Since(stub.StartTime).Minutes())
		fmt.Fprintf(stdout, "Held by %s for %d minutes.\n", c.userTag(ctx, stub.UserID), minutes)
	}

	tx, err := c.ledger.Current(ctx)
	if err != nil {
		return err
	}
	if tx == nil {
		fmt.Fprintln(stdout, "No active transaction.")
	} else {
		fmt.Fprintf(stdout, "Active transaction %d is %v.\n", tx.ID, ledger.PhaseOf(tx))
	}

	next, err := c.db.NextReservation(ctx)
	if err != nil {
		return err
	}
	if next != nil {
		loc := c.location()
		fmt.Fprintf(stdout, "Next reservation: %s at %s (%s).\n",
			c.userTag(ctx, next.UserID), next.StartTime.In(loc).Format("2006/01/02 15:04"), loc)
	}
	return nil
}

func parsePrice(arg string) (*decimal.Decimal, error) {
	v, err := decimal.NewFromString(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", arg, err)
	}
	if !v.IsPositive() {
		return nil, fmt.Errorf("price %q must be positive", arg)
	}
	return &v, nil
}

func (c *Client) cmdBuy(ctx context.Context, args []string) error {
	var price *decimal.Decimal
	var pct int
	if len(args) > 0 {
		v, err := parsePrice(args[0])
		if err != nil {
			return err
		}
		price = v
	}
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v <= 0 || v > 100 {
			return fmt.Errorf("invalid percentage %q", args[1])
		}
		pct = v
	}
	order, err := c.trader.Buy(ctx, sender(ctx).ID, price, pct)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Buy order %d placed.", order.OrderID)
	return nil
}

func (c *Client) cmdSell(ctx context.Context, args []string) error {
	var price *decimal.Decimal
	if len(args) > 0 {
		v, err := parsePrice(args[0])
		if err != nil {
			return err
		}
		price = v
	}
	order, err := c.trader.Sell(ctx, sender(ctx).ID, price)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Sell order %d placed.", order.OrderID)
	return nil
}

func (c *Client) cmdAutoBuy(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /autobuy <offset>")
	}
	offset, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", args[0], err)
	}
	order, err := c.trader.AutoBuy(ctx, sender(ctx).ID, offset)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Bought and placed sell order %d at %s.", order.OrderID, order.Price)
	return nil
}

func (c *Client) cmdCancel(ctx context.Context, args []string) error {
	if err := c.trader.Cancel(ctx, sender(ctx).ID); err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Order canceled.")
	return nil
}

func (c *Client) cmdBalance(ctx context.Context, args []string) error {
	balances, err := c.trader.Balances(ctx)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	for _, b := range balances {
		fmt.Fprintf(stdout, "%s: %s free, %s locked\n", b.Asset, b.Free, b.Locked)
	}
	return nil
}

func (c *Client) cmdPrice(ctx context.Context, args []string) error {
	price, err := c.trader.Price(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "%s", price)
	return nil
}

func (c *Client) cmdOrders(ctx context.Context, args []string) error {
	orders, err := c.trader.Orders(ctx)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	if len(orders) == 0 {
		fmt.Fprintln(stdout, "No active transaction.")
		return nil
	}
	for _, o := range orders {
		fmt.Fprintf(stdout, "%s %d: %s, executed %s\n", o.Side, o.OrderID, o.Status, o.ExecutedQty)
	}
	return nil
}

func (c *Client) cmdReserve(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: /reserve <YYYY/MM/DD> <HH:MM> <minutes>")
	}
	loc := c.location()
	begin, err := time.ParseInLocation("2006/01/02 15:04", args[0]+" "+args[1], loc)
	if err != nil {
		return fmt.Errorf("invalid start time: %w", err)
	}
	minutes, err := strconv.Atoi(args[2])
	if err != nil || minutes <= 0 {
		return fmt.Errorf("invalid minutes %q", args[2])
	}
	end := begin.Add(time.Duration(minutes) * time.Minute)

	ok, err := c.scheduler.CreateReservation(ctx, sender(ctx).ID, begin, end)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(cli.Stdout(ctx), "That window conflicts with an existing reservation.")
		return nil
	}
	fmt.Fprintf(cli.Stdout(ctx), "Reserved %s - %s.",
		begin.Format("2006/01/02 15:04"), end.In(loc).Format("15:04"))
	return nil
}

func (c *Client) cmdReservations(ctx context.Context, args []string) error {
	slots, err := c.scheduler.OpenTimeSlots(ctx, time.Time{})
	if err != nil {
		return err
	}
	loc := c.location()
	stdout := cli.Stdout(ctx)

	// Print reserved slots and compress runs of open ones.
	var openRun int
	flush := func() {
		if openRun > 0 {
			fmt.Fprintf(stdout, "  ... %d open slots ...\n", openRun)
			openRun = 0
		}
	}
	for _, slot := range slots {
		if slot.Reservation == nil {
			openRun++
			continue
		}
		flush()
		r := slot.Reservation
		fmt.Fprintf(stdout, "%s: reservation %d by %s until %s\n",
			slot.Start.In(loc).Format("2006/01/02 15:04"), r.ID,
			c.userTag(ctx, r.UserID), r.EndTime.In(loc).Format("15:04"))
	}
	flush()
	return nil
}

func (c *Client) cmdUnreserve(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /unreserve <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid reservation id %q", args[0])
	}
	r, err := c.db.Reservation(ctx, id)
	if err != nil {
		return err
	}
	from := sender(ctx)
	if r.UserID != from.ID && !c.isAdmin(from) {
		return fmt.Errorf("reservation %d belongs to %s", id, c.userTag(ctx, r.UserID))
	}
	if err := c.scheduler.Cancel(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Reservation %d canceled.", id)
	return nil
}

func (c *Client) cmdSummary(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /summary <YYYY/MM/DD|all>")
	}
	loc := c.location()
	period := timerange.Lifetime()
	if args[0] != "all" {
		day, err := time.ParseInLocation("2006/01/02", args[0], loc)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", args[0], err)
		}
		period = timerange.Day(day, loc)
	}

	summaries, err := c.payroll.Summarize(ctx, period)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	if len(summaries) == 0 {
		fmt.Fprintln(stdout, "No closed sessions in that period.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(stdout, "%s: %d minutes, realized %s\n", s.Tag, s.Minutes, s.Profit)
	}
	return nil
}

func (c *Client) cmdAddUser(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: /adduser <id> <tag>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", args[0])
	}
	if err := c.db.AddUser(ctx, id, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "User %s registered.", args[1])
	return nil
}

func (c *Client) cmdSetConfig(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: /setconfig <section> <key> <value>")
	}
	if err := c.cfg.Set(ctx, args[0], args[1], args[2]); err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "%s/%s = %s", args[0], args[1], args[2])
	return nil
}

func (c *Client) cmdListConfig(ctx context.Context, args []string) error {
	rows, err := c.db.Configs(ctx)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	for _, row := range rows {
		if len(args) > 0 && row.Section != args[0] {
			continue
		}
		value := "(unset)"
		if row.Value != nil {
			value = *row.Value
		}
		fmt.Fprintf(stdout, "%s/%s = %s\n", row.Section, row.Key, value)
	}
	return nil
}

func (c *Client) cmdAccount(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)
	if len(args) == 0 {
		accounts, err := c.db.Accounts(ctx)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			marker := " "
			if a.Selected {
				marker = "*"
			}
			kind := "mainnet"
			if a.Testnet {
				kind = "testnet"
			}
			fmt.Fprintf(stdout, "%s %s (%s)\n", marker, a.Name, kind)
		}
		return nil
	}
	if err := c.db.SelectAccount(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Account %q is now selected.", args[0])
	return nil
}

func (c *Client) cmdUptime(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)
	const day = 24 * time.Hour
	d := time.Since(start)
	if d < day {
		fmt.Fprintf(stdout, "%v", d)
		return nil
	}
	fmt.Fprintf(stdout, "%dd%v", d/day, d%day)
	return nil
}
