// Copyright (c) 2025 BVK Chaitanya

package config

import (
	"context"
	"errors"
	"os"

	"github.com/bvk/shiftbot/store"
)

type defaultEntry struct {
	section, key string
	valueType    int
	value        string
	hasValue     bool
	description  string
}

var defaults = []defaultEntry{
	{"trading", "account_name", TypeString, "", false, "Selected account name; set through the account command, not setconfig"},
	{"trading", "symbol", TypeString, "BTCUSDT", true, "The symbol pair being traded"},
	{"trading", "market_orders", TypeBool, "true", true, "Whether market orders are allowed"},
	{"trading", "quote_asset_threshold", TypeString, "10", true, "Quote balance at or below which a buy leg counts as fully settled"},
	{"trading", "base_asset_threshold", TypeString, "0.0001", true, "Base balance at or below which a sell leg counts as fully settled"},
	{"trading", "buy_timeout_s", TypeInt, "60", true, "Seconds the buy command waits for an interactive response"},
	{"trading", "sell_timeout_s", TypeInt, "60", true, "Seconds the sell command waits for an interactive response"},
	{"general", "command_timeout_s", TypeInt, "300", true, "Overall timeout for one chat command"},
	{"schedule", "reservation_interval_min", TypeInt, "15", true, "Slot width between available reservations; do not change with reservations outstanding"},
	{"schedule", "reservation_alert_min", TypeInt, "15", true, "Minutes before a reservation start to alert its owner"},
	{"schedule", "reservation_lock_min", TypeInt, "15", true, "Minutes after a reservation start that the account stays reserved"},
	{"schedule", "afk_warn_min", TypeInt, "15", true, "Minutes of inactivity before an AFK check"},
	{"schedule", "afk_timeout_min", TypeInt, "5", true, "Minutes to confirm an AFK check before forced unlock"},
	{"schedule", "timezone", TypeString, "America/Chicago", true, "Timezone for user-facing schedule formatting"},
	{"notify", "order_status", TypeBool, "true", true, "Send order settlement notifications"},
	{"notify", "afk", TypeBool, "true", true, "Send AFK warnings"},
	{"notify", "reservations", TypeBool, "true", true, "Send upcoming reservation alerts"},
}

// Seed inserts every known setting that doesn't already exist. Existing
// rows and their values are left untouched.
func Seed(ctx context.Context, db *store.Store) error {
	for _, d := range defaults {
		row := &store.ConfigRow{
			Section:     d.section,
			Key:         d.key,
			ValueType:   d.valueType,
			Description: d.description,
		}
		if d.hasValue {
			v := d.value
			row.Value = &v
		}
		if err := db.InsertConfig(ctx, row); err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return err
		}
	}
	return nil
}
