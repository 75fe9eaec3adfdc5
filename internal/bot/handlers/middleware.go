// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/uptimebot/internal/ledger"
)

type tenantKey struct{}

// TenantFromContext returns the tenant set by TenantOnly.
func TenantFromContext(ctx context.Context) (ledger.TenantKey, bool) {
	tenant, ok := ctx.Value(tenantKey{}).(ledger.TenantKey)
	return tenant, ok
}

// TenantOnly creates a middleware that lets through messages from admin chats
// bound to a tenant and stores that tenant in the context. Other chats get the
// "not logged in" message and processing stops.
func TenantOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if update.Message == nil {
				return
			}

			chatID := update.Message.Chat.ID
			tenant, ok := deps.Tracker.TenantForChat(chatID)
			if !ok {
				log := deps.Logger.With("middleware", "TenantOnly")
				log.WarnContext(ctx, "Command from chat without tenant", "chat_id", chatID)
				reply(ctx, bot, log, chatID, deps.Config.Messages.NotLoggedIn)
				return
			}

			next(context.WithValue(ctx, tenantKey{}, tenant), bot, update)
		}
	}
}

// PrivateOnly drops messages that were not sent in a private chat.
func PrivateOnly() tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
				return
			}
			next(ctx, bot, update)
		}
	}
}
