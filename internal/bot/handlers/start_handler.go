package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/uptimebot/internal/tracker"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

// startHandler logs a private chat into a tenant. Without a key it asks for
// one and the next plain text of the chat is taken as the key.
type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil {
		log.WarnContext(ctx, "Start handler received update with nil message", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /start command", "chat_id", chatID)

	args := commandArgs(update.Message.Text)
	if len(args) == 0 {
		if tenant, ok := h.deps.Tracker.TenantForChat(chatID); ok {
			h.deps.Tracker.PublishAll(ctx, tenant, chatID, true)
			return
		}
		h.deps.Pending.Add(chatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.AskAccessKey)
		return
	}

	login(ctx, b, h.deps, log, chatID, args[0])
}

// login tries key for chatID and reports the outcome to the chat.
func login(ctx context.Context, b *bot.Bot, deps HandlerDeps, log *slog.Logger, chatID int64, key string) {
	tenant, err := deps.Tracker.Login(ctx, chatID, key)
	switch {
	case errors.Is(err, tracker.ErrInvalidAccessKey):
		log.WarnContext(ctx, "Invalid access key", "chat_id", chatID)
		deps.Pending.Add(chatID)
		reply(ctx, b, log, chatID, deps.Config.Messages.InvalidAccessKey)
		return
	case err != nil:
		log.ErrorContext(ctx, "Login failed", "chat_id", chatID, "error", err)
		reply(ctx, b, log, chatID, deps.Config.Messages.GeneralError)
		return
	}

	deps.Pending.Remove(chatID)
	name := tenant.Name
	if name == "" {
		name = tenant.ID
	}
	reply(ctx, b, log, chatID, fmt.Sprintf(deps.Config.Messages.LoggedIn, name))
}
