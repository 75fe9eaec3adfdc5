package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/uptimebot/internal/tracker"
)

// NewCallbackHandler returns a handler for the summary keyboard buttons.
func NewCallbackHandler(deps HandlerDeps) bot.HandlerFunc {
	return callbackHandler{deps}.Handle
}

type callbackHandler struct {
	deps HandlerDeps
}

func (h callbackHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "callback")

	cq := update.CallbackQuery
	if cq == nil {
		return
	}
	defer func() {
		if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID}); err != nil {
			log.WarnContext(ctx, "Failed to answer callback query", "error", err)
		}
	}()

	if cq.Message.Message == nil {
		log.DebugContext(ctx, "Callback on inaccessible message ignored", "data", cq.Data)
		return
	}
	chatID := cq.Message.Message.Chat.ID

	if cq.Data == CallbackStop {
		logout(ctx, b, h.deps, log, chatID)
		return
	}

	view, groupID, ok := ParseViewCallback(cq.Data)
	if !ok {
		log.WarnContext(ctx, "Unknown callback data", "data", cq.Data, "chat_id", chatID)
		return
	}

	err := h.deps.Tracker.SwitchView(ctx, chatID, groupID, view)
	switch {
	case errors.Is(err, tracker.ErrNotLoggedIn):
		reply(ctx, b, log, chatID, h.deps.Config.Messages.NotLoggedIn)
	case err != nil:
		log.ErrorContext(ctx, "Failed to switch view", "chat_id", chatID, "group_id", groupID, "error", err)
	}
}
