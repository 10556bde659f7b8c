// Copyright (c) 2025 BVK Chaitanya

// Package telegram is the chat front end: it maps bot commands onto the
// clock, trading and scheduling operations, enforces authorization and
// delivers out-of-band notifications (settlements, reservation alerts, AFK
// prompts).
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bvk/shiftbot/clock"
	"github.com/bvk/shiftbot/config"
	"github.com/bvk/shiftbot/ledger"
	"github.com/bvk/shiftbot/payroll"
	"github.com/bvk/shiftbot/schedule"
	"github.com/bvk/shiftbot/store"
	"github.com/bvk/shiftbot/syncmap"
	"github.com/bvk/shiftbot/trader"
	"github.com/google/uuid"
	"github.com/visvasity/cli"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type CmdFunc = cli.CmdFunc

type Command struct {
	Name    string
	Purpose string

	// AdminOnly commands require the sender to be the configured owner or
	// admin; others require a registered user row.
	AdminOnly bool

	Handler CmdFunc
}

type Client struct {
	db *store.Store

	cfg *config.Config

	clock     *clock.Clock
	trader    *trader.Trader
	ledger    *ledger.Ledger
	scheduler *schedule.Scheduler
	payroll   *payroll.Aggregator

	bot *bot.Bot

	self *models.User

	secrets *Secrets

	commandMap syncmap.Map[string, *Command]
}

// senderKey carries the authorized *models.User through command handlers.
type senderKey struct{}

func withSender(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, senderKey{}, u)
}

func sender(ctx context.Context) *models.User {
	v, _ := ctx.Value(senderKey{}).(*models.User)
	return v
}

func New(ctx context.Context, db *store.Store, cfg *config.Config, c *clock.Clock, t *trader.Trader, l *ledger.Ledger, sched *schedule.Scheduler, p *payroll.Aggregator, secrets *Secrets) (_ *Client, status error) {
	if err := secrets.Check(); err != nil {
		return nil, err
	}

	v := &Client{
		db:        db,
		cfg:       cfg,
		clock:     c,
		trader:    t,
		ledger:    l,
		scheduler: sched,
		payroll:   p,
		secrets:   secrets.Clone(),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(v.handler),
	}
	b, err := bot.New(secrets.BotToken, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if status != nil {
			b.Close(ctx)
		}
	}()
	v.bot = b

	self, err := b.GetMe(ctx)
	if err != nil {
		return nil, err
	}
	v.self = self

	for _, cmd := range v.allCommands() {
		v.commandMap.Store(cmd.Name, cmd)
	}
	if ok, err := v.bot.SetMyCommands(ctx, v.commands()); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("could not set bot commands")
	}
	return v, nil
}

// Start runs the bot's update loop until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	c.bot.Start(ctx)
}

func (c *Client) Close(ctx context.Context) error {
	_, err := c.bot.Close(ctx)
	return err
}

func (c *Client) BotUserName() string {
	return c.self.Username
}

func (c *Client) commands() *bot.SetMyCommandsParams {
	var cmds []models.BotCommand
	for name, cdata := range c.commandMap.Range {
		cmds = append(cmds, models.BotCommand{
			Command:     name,
			Description: cdata.Purpose,
		})
	}
	return &bot.SetMyCommandsParams{Commands: cmds}
}

func (c *Client) getCommand(update *models.Update) (string, []string, *Command, error) {
	if update.Message == nil {
		return "", nil, nil, os.ErrInvalid
	}
	if len(update.Message.Entities) == 0 {
		return "", nil, nil, os.ErrInvalid
	}
	entity := update.Message.Entities[0]
	if entity.Type != models.MessageEntityTypeBotCommand {
		return "", nil, nil, os.ErrInvalid
	}
	if entity.Offset != 0 {
		return "", nil, nil, os.ErrInvalid
	}
	if update.Message.Text[0] != '/' {
		return "", nil, nil, os.ErrInvalid
	}
	cmd := update.Message.Text[1:entity.Length]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	args := strings.Fields(strings.TrimSpace(update.Message.Text[entity.Length:]))
	cdata, ok := c.commandMap.Load(cmd)
	if !ok {
		return cmd, nil, nil, os.ErrNotExist
	}
	return cmd, args, cdata, nil
}

func (c *Client) isAdmin(u *models.User) bool {
	return u.Username == c.secrets.OwnerID || (len(c.secrets.AdminID) != 0 && u.Username == c.secrets.AdminID)
}

func (c *Client) isRegistered(ctx context.Context, u *models.User) bool {
	if c.isAdmin(u) {
		return true
	}
	_, err := c.db.User(ctx, u.ID)
	return err == nil
}

func (c *Client) handler(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	from := update.Message.From
	if !c.isRegistered(ctx, from) {
		slog.Warn("received message from unknown user (ignored)", "sender", from.Username, "id", from.ID)
		return
	}

	if err := c.db.SetChatID(ctx, from.ID, update.Message.Chat.ID); err != nil {
		slog.Warn("could not save chat id (ignored)", "user", from.ID, "err", err)
	}

	if err := c.respond(ctx, update); err != nil {
		slog.Error("could not respond to user command (ignored)", "user", from.Username, "err", err)
	}
}

func (c *Client) respond(ctx context.Context, update *models.Update) (status error) {
	True := true

	var reply string
	defer func() {
		if len(reply) != 0 {
			p := &bot.SendMessageParams{
				ChatID: update.Message.Chat.ID,
				Text:   reply,
				ReplyParameters: &models.ReplyParameters{
					MessageID: update.Message.ID,
				},
				LinkPreviewOptions: &models.LinkPreviewOptions{
					IsDisabled: &True,
				},
			}
			if _, err := c.bot.SendMessage(ctx, p); err != nil {
				status = err
			}
		}
	}()

	defer func() {
		if status != nil && !errors.Is(status, os.ErrInvalid) {
			reply = status.Error()
			status = nil
		}
	}()

	cmd, args, cdata, err := c.getCommand(update)
	if err != nil {
		return err
	}
	from := update.Message.From
	if cdata.AdminOnly && !c.isAdmin(from) {
		return fmt.Errorf("command %q requires admin privileges", cmd)
	}

	timeout := time.Duration(c.cfg.Snapshot().IntOrDefault("general", "command_timeout_s", 300)) * time.Second
	tctx, cancel := context.WithTimeout(withSender(ctx, from), timeout)
	defer cancel()

	var sb strings.Builder
	if err := cdata.Handler(cli.WithStdout(tctx, &sb), args); err != nil {
		slog.Error("could not handle user command (ignored)", "cmd", cmd, "user", from.Username, "err", err)
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("command %q timed out after %s (partial changes may have applied)", cmd, timeout)
		}
		return err
	}

	reply = sb.String()
	return nil
}

// Notify implements the server's Notifier: one-way message delivery to a
// user's last known chat.
func (c *Client) Notify(ctx context.Context, userID int64, text string) error {
	chatID, err := c.db.ChatID(ctx, userID)
	if err != nil {
		return fmt.Errorf("user %d has no known chat: %w", userID, err)
	}
	_, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return err
}

// ConfirmPresence sends an inline-button prompt to the user and waits up to
// timeout for a click. Returns false when the window elapses unanswered.
func (c *Client) ConfirmPresence(ctx context.Context, userID int64, timeout time.Duration) (bool, error) {
	chatID, err := c.db.ChatID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("user %d has no known chat: %w", userID, err)
	}

	data := "afk-ack-" + uuid.New().String()
	clicked := make(chan struct{})
	handlerID := c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, data, bot.MatchTypeExact,
		func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if update.CallbackQuery == nil || update.CallbackQuery.From.ID != userID {
				return
			}
			b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
				CallbackQueryID: update.CallbackQuery.ID,
				Text:            "Welcome back!",
			})
			close(clicked)
		})
	defer c.bot.UnregisterHandler(handlerID)

	_, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   fmt.Sprintf("Are you still there? Respond within %s or you will be clocked out.", timeout),
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{{
				{Text: "I'm still here", CallbackData: data},
			}},
		},
	})
	if err != nil {
		return false, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, context.Cause(ctx)
	case <-timer.C:
		return false, nil
	case <-clicked:
		return true, nil
	}
}
