// Copyright (c) 2025 BVK Chaitanya

// Package config exposes the store-backed runtime settings as an immutable
// snapshot that can be swapped without a restart. Values are kept as typed
// rows in the configs table; every reader works off a point-in-time
// Snapshot so a concurrent /setconfig never tears a multi-key read.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/bvk/shiftbot/store"
	"github.com/shopspring/decimal"
)

// Value types persisted in the value_type column.
const (
	TypeString = 0
	TypeInt    = 1
	TypeBigInt = 2
	TypeBool   = 3
)

// MissingError reports a required setting without a value. The section/key
// pair is kept so an operator knows what to fix.
type MissingError struct {
	Section, Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("config %s/%s has no value", e.Section, e.Key)
}

type entry struct {
	value       *string
	valueType   int
	description string
}

// Snapshot is an immutable view of all settings.
type Snapshot struct {
	sections map[string]map[string]entry
}

// Config loads settings from the store and publishes snapshots.
type Config struct {
	db *store.Store

	snapshot atomic.Pointer[Snapshot]
}

func New(ctx context.Context, db *store.Store) (*Config, error) {
	c := &Config{db: db}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Snapshot returns the current point-in-time view.
func (c *Config) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Reload re-reads every row and swaps in a fresh snapshot.
func (c *Config) Reload(ctx context.Context) error {
	rows, err := c.db.Configs(ctx)
	if err != nil {
		return fmt.Errorf("could not load config rows: %w", err)
	}
	snap := &Snapshot{sections: make(map[string]map[string]entry)}
	for _, row := range rows {
		sec, ok := snap.sections[row.Section]
		if !ok {
			sec = make(map[string]entry)
			snap.sections[row.Section] = sec
		}
		sec[row.Key] = entry{value: row.Value, valueType: row.ValueType, description: row.Description}
	}
	c.snapshot.Store(snap)
	return nil
}

// Set type-checks the value against the entry's declared type, persists it
// and publishes a new snapshot. Unknown settings are rejected; new settings
// are only born through seeding.
func (c *Config) Set(ctx context.Context, section, key, value string) error {
	row, err := c.db.Config(ctx, section, key)
	if err != nil {
		return err
	}
	switch row.ValueType {
	case TypeString:
	case TypeInt, TypeBigInt:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("config %s/%s wants an integer: %w", section, key, err)
		}
	case TypeBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("config %s/%s wants a boolean: %w", section, key, err)
		}
	default:
		return fmt.Errorf("config %s/%s has unknown value type %d", section, key, row.ValueType)
	}
	if err := c.db.SetConfigValue(ctx, section, key, &value); err != nil {
		return err
	}
	return c.Reload(ctx)
}

func (s *Snapshot) lookup(section, key string) (entry, bool) {
	sec, ok := s.sections[section]
	if !ok {
		return entry{}, false
	}
	e, ok := sec[key]
	return e, ok
}

// Describe returns the description text for a setting.
func (s *Snapshot) Describe(section, key string) string {
	e, _ := s.lookup(section, key)
	return e.description
}

// String returns the raw value. The second result is false when the setting
// doesn't exist or has no value.
func (s *Snapshot) String(section, key string) (string, bool) {
	e, ok := s.lookup(section, key)
	if !ok || e.value == nil {
		return "", false
	}
	return *e.value, true
}

// Int returns an integer setting. Malformed stored values are logged and
// treated as unset.
func (s *Snapshot) Int(section, key string) (int64, bool) {
	v, ok := s.String(section, key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("config value is not an integer (treated as unset)", "section", section, "key", key, "value", v)
		return 0, false
	}
	return n, true
}

func (s *Snapshot) Bool(section, key string) (bool, bool) {
	v, ok := s.String(section, key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config value is not a boolean (treated as unset)", "section", section, "key", key, "value", v)
		return false, false
	}
	return b, true
}

// Decimal returns a money-valued setting (thresholds, offsets).
func (s *Snapshot) Decimal(section, key string) (decimal.Decimal, bool) {
	v, ok := s.String(section, key)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		slog.Warn("config value is not a number (treated as unset)", "section", section, "key", key, "value", v)
		return decimal.Zero, false
	}
	return d, true
}

// IntOrDefault is Int with a fallback for unset values.
func (s *Snapshot) IntOrDefault(section, key string, def int64) int64 {
	if v, ok := s.Int(section, key); ok {
		return v
	}
	return def
}

func (s *Snapshot) BoolOrDefault(section, key string, def bool) bool {
	if v, ok := s.Bool(section, key); ok {
		return v
	}
	return def
}

// RequireString is String that fails with a MissingError naming the setting.
func (s *Snapshot) RequireString(section, key string) (string, error) {
	v, ok := s.String(section, key)
	if !ok {
		return "", &MissingError{Section: section, Key: key}
	}
	return v, nil
}

func (s *Snapshot) RequireDecimal(section, key string) (decimal.Decimal, error) {
	v, ok := s.Decimal(section, key)
	if !ok {
		return decimal.Zero, &MissingError{Section: section, Key: key}
	}
	return v, nil
}
