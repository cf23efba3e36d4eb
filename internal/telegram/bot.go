package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/snagbot/internal/model"
	"github.com/dukerupert/snagbot/internal/scheduler"
	"github.com/dukerupert/snagbot/internal/store"
	"github.com/dukerupert/snagbot/internal/ugphone"
)

const (
	pollTimeoutSec   = 50
	pollRetryWait    = 3 * time.Second
	commandTimeout   = 20 * time.Second
	removeCallback   = "remove:"
	helpText         = "Welcome to the UgPhone trial sniper.\n\n" +
		"Commands:\n" +
		"/add <credential JSON> - add a UgPhone account (paste the UGPHONE-MQTT JSON)\n" +
		"/list - list your accounts and their current state\n" +
		"/remove - remove an account\n\n" +
		"Once added, the bot keeps attempting the trial purchase and reports progress here."
)

// Registry is the scheduler surface the bot drives. *scheduler.Scheduler
// satisfies it.
type Registry interface {
	Register(acc *model.Account)
	Unregister(loginID string)
	State(loginID string) (scheduler.State, bool)
}

// Validator checks a credential pair against the live API before it is
// persisted. *ugphone.Client satisfies it.
type Validator interface {
	Validate(ctx context.Context, accessToken, loginID string) error
}

// Bot runs the Telegram command loop: it owns the account store and drives
// the scheduler registry to match it.
type Bot struct {
	client    *Client
	accounts  *store.AccountStore
	registry  Registry
	validator Validator
	logger    *slog.Logger
}

func NewBot(client *Client, accounts *store.AccountStore, registry Registry, validator Validator, logger *slog.Logger) *Bot {
	return &Bot{
		client:    client,
		accounts:  accounts,
		registry:  registry,
		validator: validator,
		logger:    logger,
	}
}

// Run long-polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset, pollTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("get updates", "error", err)
			select {
			case <-time.After(pollRetryWait):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.handleUpdate(ctx, u)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, u Update) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && strings.HasPrefix(u.Message.Text, "/"):
		b.handleCommand(ctx, u.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *Message) {
	command, args, _ := strings.Cut(msg.Text, " ")
	// Commands in group chats arrive as /command@botname.
	command, _, _ = strings.Cut(command, "@")

	switch command {
	case "/start", "/help":
		b.reply(ctx, msg.Chat.ID, helpText)
	case "/add":
		b.handleAdd(ctx, msg.Chat.ID, strings.TrimSpace(args))
	case "/list":
		b.handleList(ctx, msg.Chat.ID)
	case "/remove":
		b.handleRemove(ctx, msg.Chat.ID)
	default:
		b.reply(ctx, msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, blob string) {
	if blob == "" {
		b.reply(ctx, chatID, `Usage: /add {"access_token": "...", "login_id": "...", ...}`)
		return
	}

	creds, err := ugphone.ParseCredentials(blob)
	if err != nil {
		b.reply(ctx, chatID, "That doesn't look right: "+err.Error())
		return
	}

	if err := b.validator.Validate(ctx, creds.AccessToken, creds.LoginID); err != nil {
		b.logger.Info("credential validation failed", "chat_id", chatID, "login_id", creds.LoginID, "error", err)
		b.reply(ctx, chatID, "Validation failed: "+err.Error())
		return
	}

	acc, err := b.accounts.Create(chatID, creds.LoginID, creds.AccessToken, creds.RawPayload)
	if err != nil {
		b.logger.Error("store account", "login_id", creds.LoginID, "error", err)
		b.reply(ctx, chatID, "Could not save the account, try again.")
		return
	}

	b.registry.Register(acc)
	b.reply(ctx, chatID, fmt.Sprintf("Account %s added. Purchase attempts start now.", acc.LoginID))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	accounts, err := b.accounts.ListByChat(chatID)
	if err != nil {
		b.logger.Error("list accounts", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, "Could not load your accounts, try again.")
		return
	}
	if len(accounts) == 0 {
		b.reply(ctx, chatID, "You have no configured accounts. Use /add to register one.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your accounts:\n\n")
	for i, acc := range accounts {
		state := "not scheduled"
		if s, ok := b.registry.State(acc.LoginID); ok {
			state = string(s)
		}
		fmt.Fprintf(&sb, "%d. %s\n   token: %s\n   state: %s\n\n", i+1, acc.LoginID, acc.MaskedToken(), state)
	}
	b.reply(ctx, chatID, sb.String())
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64) {
	accounts, err := b.accounts.ListByChat(chatID)
	if err != nil {
		b.logger.Error("list accounts", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, "Could not load your accounts, try again.")
		return
	}
	if len(accounts) == 0 {
		b.reply(ctx, chatID, "You have no accounts to remove.")
		return
	}

	markup := &InlineKeyboardMarkup{}
	for _, acc := range accounts {
		markup.InlineKeyboard = append(markup.InlineKeyboard, []InlineKeyboardButton{{
			Text:         "Delete " + acc.LoginID,
			CallbackData: removeCallback + acc.LoginID,
		}})
	}
	if _, err := b.client.SendMessage(ctx, chatID, "Select an account to remove:", markup); err != nil {
		b.logger.Error("send remove keyboard", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *CallbackQuery) {
	if err := b.client.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		b.logger.Warn("answer callback", "error", err)
	}
	if cb.Message == nil || !strings.HasPrefix(cb.Data, removeCallback) {
		return
	}
	chatID := cb.Message.Chat.ID
	loginID := strings.TrimPrefix(cb.Data, removeCallback)

	// Only the owning chat may remove an account.
	acc, err := b.accounts.GetByLoginID(loginID)
	if err != nil || acc == nil || acc.ChatID != chatID {
		b.edit(ctx, chatID, cb.Message.MessageID, fmt.Sprintf("Account %s not found or already removed.", loginID))
		return
	}

	// The scheduler guarantees no events for this account after Unregister
	// returns, so the store delete and the confirmation cannot race a stale
	// status update.
	b.registry.Unregister(loginID)
	if _, err := b.accounts.Delete(loginID); err != nil {
		b.logger.Error("delete account", "login_id", loginID, "error", err)
		b.edit(ctx, chatID, cb.Message.MessageID, "Could not remove the account, try again.")
		return
	}
	b.edit(ctx, chatID, cb.Message.MessageID, fmt.Sprintf("Account %s removed.", loginID))
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.client.SendMessage(ctx, chatID, text, nil); err != nil {
		b.logger.Error("send reply", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) edit(ctx context.Context, chatID, messageID int64, text string) {
	if err := b.client.EditMessageText(ctx, chatID, messageID, text); err != nil {
		b.logger.Warn("edit message", "chat_id", chatID, "error", err)
	}
}
