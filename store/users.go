// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// User maps a chat-platform user id to a display tag.
type User struct {
	ID  int64
	Tag string
}

// AddUser registers a user. Re-registering an existing id updates the tag.
func (s *Store) AddUser(ctx context.Context, id int64, tag string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, tag) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET tag = excluded.tag`,
		id, tag)
	if err != nil {
		return fmt.Errorf("could not add user %d: %w", id, err)
	}
	return nil
}

func (s *Store) User(ctx context.Context, id int64) (*User, error) {
	u := new(User)
	err := s.db.QueryRowContext(ctx, `SELECT id, tag FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Tag)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, os.ErrNotExist)
		}
		return nil, fmt.Errorf("could not load user %d: %w", id, err)
	}
	return u, nil
}

// SetChatID remembers the chat to use for notifying a user.
func (s *Store) SetChatID(ctx context.Context, userID, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_ids (user_id, chat_id) VALUES (?, ?) ON CONFLICT(user_id) DO UPDATE SET chat_id = excluded.chat_id`,
		userID, chatID)
	if err != nil {
		return fmt.Errorf("could not save chat id for user %d: %w", userID, err)
	}
	return nil
}

func (s *Store) ChatID(ctx context.Context, userID int64) (int64, error) {
	var chatID int64
	err := s.db.QueryRowContext(ctx, `SELECT chat_id FROM chat_ids WHERE user_id = ?`, userID).Scan(&chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("chat id for user %d: %w", userID, os.ErrNotExist)
		}
		return 0, fmt.Errorf("could not load chat id for user %d: %w", userID, err)
	}
	return chatID, nil
}

func (s *Store) Users(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, tag FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("could not list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := new(User)
		if err := rows.Scan(&u.ID, &u.Tag); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
