// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// ConfigRow is one typed setting. (Section, Key) pairs are unique.
type ConfigRow struct {
	Section     string
	Key         string
	ValueType   int
	Value       *string
	Description string
}

// InsertConfig creates a config entry. A duplicate (section, key) returns
// os.ErrExist so seeding can skip entries that already exist.
func (s *Store) InsertConfig(ctx context.Context, row *ConfigRow) error {
	var value sql.NullString
	if row.Value != nil {
		value = sql.NullString{String: *row.Value, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO configs (section, key, value_type, value, description) VALUES (?, ?, ?, ?, ?)`,
		row.Section, row.Key, row.ValueType, value, row.Description)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("config %s/%s: %w", row.Section, row.Key, os.ErrExist)
		}
		return fmt.Errorf("could not insert config %s/%s: %w", row.Section, row.Key, err)
	}
	return nil
}

func (s *Store) Config(ctx context.Context, section, key string) (*ConfigRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT section, key, value_type, value, description FROM configs WHERE section = ? AND key = ?`,
		section, key)
	c, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("config %s/%s: %w", section, key, os.ErrNotExist)
		}
		return nil, fmt.Errorf("could not load config %s/%s: %w", section, key, err)
	}
	return c, nil
}

func scanConfig(row interface{ Scan(...any) error }) (*ConfigRow, error) {
	c := new(ConfigRow)
	var value sql.NullString
	if err := row.Scan(&c.Section, &c.Key, &c.ValueType, &value, &c.Description); err != nil {
		return nil, err
	}
	if value.Valid {
		v := value.String
		c.Value = &v
	}
	return c, nil
}

func (s *Store) Configs(ctx context.Context) ([]*ConfigRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT section, key, value_type, value, description FROM configs ORDER BY section, key`)
	if err != nil {
		return nil, fmt.Errorf("could not list configs: %w", err)
	}
	defer rows.Close()

	var cs []*ConfigRow
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return cs, rows.Err()
}

// SetConfigValue updates the value of an existing entry. Unknown entries
// return os.ErrNotExist; new settings must be created through InsertConfig.
func (s *Store) SetConfigValue(ctx context.Context, section, key string, value *string) error {
	var v sql.NullString
	if value != nil {
		v = sql.NullString{String: *value, Valid: true}
	}
	err := s.execOne(ctx, `UPDATE configs SET value = ? WHERE section = ? AND key = ?`, v, section, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("config %s/%s: %w", section, key, os.ErrNotExist)
		}
		return fmt.Errorf("could not update config %s/%s: %w", section, key, err)
	}
	return nil
}
