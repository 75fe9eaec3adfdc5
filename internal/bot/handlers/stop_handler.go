package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/uptimebot/internal/tracker"
)

// NewStopHandler returns a handler for the /stop command.
func NewStopHandler(deps HandlerDeps) bot.HandlerFunc {
	return stopHandler{deps}.Handle
}

type stopHandler struct {
	deps HandlerDeps
}

func (h stopHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "stop")

	if update.Message == nil {
		log.WarnContext(ctx, "Stop handler received update with nil message", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /stop command", "chat_id", chatID)
	logout(ctx, b, h.deps, log, chatID)
}

func logout(ctx context.Context, b *bot.Bot, deps HandlerDeps, log *slog.Logger, chatID int64) {
	deps.Pending.Remove(chatID)
	err := deps.Tracker.Logout(ctx, chatID)
	switch {
	case errors.Is(err, tracker.ErrNotLoggedIn):
		reply(ctx, b, log, chatID, deps.Config.Messages.NotLoggedIn)
	case err != nil:
		log.ErrorContext(ctx, "Logout failed", "chat_id", chatID, "error", err)
		reply(ctx, b, log, chatID, deps.Config.Messages.GeneralError)
	default:
		reply(ctx, b, log, chatID, deps.Config.Messages.LoggedOut)
	}
}
