// Copyright (c) 2025 BVK Chaitanya

package telegram

import (
	"errors"
	"os"
	"testing"

	"github.com/go-telegram/bot/models"
)

func TestSecretsCheck(t *testing.T) {
	if err := (&Secrets{}).Check(); err == nil {
		t.Fatal("empty secrets passed the check")
	}
	if err := (&Secrets{BotToken: "x"}).Check(); err == nil {
		t.Fatal("secrets without owner passed the check")
	}
	if err := (&Secrets{BotToken: "x", OwnerID: "boss"}).Check(); err != nil {
		t.Fatal(err)
	}
}

func TestGetCommand(t *testing.T) {
	c := &Client{}
	c.commandMap.Store("status", &Command{Name: "status", Purpose: "test"})

	update := func(text string) *models.Update {
		return &models.Update{
			Message: &models.Message{
				Text: text,
				Entities: []models.MessageEntity{{
					Type:   models.MessageEntityTypeBotCommand,
					Offset: 0,
					Length: len("/status"),
				}},
			},
		}
	}

	cmd, args, cdata, err := c.getCommand(update("/status now please"))
	if err != nil {
		t.Fatal(err)
	}
	if cmd != "status" || cdata == nil {
		t.Fatalf("cmd %q, cdata %v", cmd, cdata)
	}
	if len(args) != 2 || args[0] != "now" || args[1] != "please" {
		t.Fatalf("args: %v", args)
	}

	if _, _, _, err := c.getCommand(&models.Update{}); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}

	c2 := &Client{}
	c2.commandMap.Store("other", &Command{Name: "other"})
	if _, _, _, err := c2.getCommand(update("/status")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want ErrNotExist, got %v", err)
	}
}
