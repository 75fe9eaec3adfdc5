package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/uptimebot/internal/bot/handlers"
	"github.com/edgard/uptimebot/internal/config"
	"github.com/edgard/uptimebot/internal/database"
	"github.com/edgard/uptimebot/internal/ledger"
	"github.com/edgard/uptimebot/internal/report"
	"github.com/edgard/uptimebot/internal/tracker"
)

// ErrNotBound is returned when a summary is published before Bind.
var ErrNotBound = errors.New("notifier has no telegram client")

// Sender is the subset of *bot.Bot used to deliver summaries.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
}

// SummaryStore persists the message id of each live summary.
type SummaryStore interface {
	GetSummaryMessage(ctx context.Context, tenant ledger.TenantKey, chatID, groupID int64) (*database.SummaryMessage, error)
	SaveSummaryMessage(ctx context.Context, msg *database.SummaryMessage) error
}

// Notifier posts summaries to admin chats and edits them in place afterwards.
type Notifier struct {
	store   SummaryStore
	buttons config.ReportConfig
	log     *slog.Logger

	mu     sync.RWMutex
	sender Sender
}

var _ tracker.Notifier = (*Notifier)(nil)

// NewNotifier returns a notifier. Bind must be called before the first publish.
func NewNotifier(store SummaryStore, cfg config.ReportConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		store:   store,
		buttons: cfg,
		log:     logger.With("component", "summary_notifier"),
	}
}

// Bind sets the client used to deliver messages.
func (n *Notifier) Bind(sender Sender) {
	n.mu.Lock()
	n.sender = sender
	n.mu.Unlock()
}

// PublishSummary edits the stored summary message of the group, or sends a new
// one when none exists, the edit fails or a fresh message is requested.
func (n *Notifier) PublishSummary(ctx context.Context, u tracker.SummaryUpdate) error {
	n.mu.RLock()
	sender := n.sender
	n.mu.RUnlock()
	if sender == nil {
		return ErrNotBound
	}

	keyboard := n.keyboard(u.GroupID)

	if !u.Fresh {
		prev, err := n.store.GetSummaryMessage(ctx, u.Tenant, u.ChatID, u.GroupID)
		if err != nil {
			return fmt.Errorf("failed to get summary message: %w", err)
		}
		if prev != nil {
			_, err := sender.EditMessageText(ctx, &bot.EditMessageTextParams{
				ChatID:             u.ChatID,
				MessageID:          prev.MessageID,
				Text:               u.Text,
				ParseMode:          models.ParseModeHTML,
				ReplyMarkup:        keyboard,
				LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
			})
			switch {
			case err == nil || isNotModified(err):
				if prev.View != string(u.View) {
					prev.View = string(u.View)
					return n.save(ctx, prev)
				}
				return nil
			default:
				n.log.WarnContext(ctx, "Failed to edit summary, sending a new one",
					"chat_id", u.ChatID, "group_id", u.GroupID, "message_id", prev.MessageID, "error", err)
			}
		}
	}

	msg, err := sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:             u.ChatID,
		Text:               u.Text,
		ParseMode:          models.ParseModeHTML,
		ReplyMarkup:        keyboard,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	})
	if err != nil {
		return fmt.Errorf("failed to send summary: %w", err)
	}

	return n.save(ctx, &database.SummaryMessage{
		TenantKey: string(u.Tenant),
		ChatID:    u.ChatID,
		GroupID:   u.GroupID,
		MessageID: msg.ID,
		View:      string(u.View),
	})
}

func (n *Notifier) save(ctx context.Context, msg *database.SummaryMessage) error {
	if err := n.store.SaveSummaryMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to save summary message: %w", err)
	}
	return nil
}

func (n *Notifier) keyboard(groupID int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: n.buttons.GroupedButton, CallbackData: handlers.ViewCallback(report.ViewGrouped, groupID)},
				{Text: n.buttons.DailyButton, CallbackData: handlers.ViewCallback(report.ViewDaily, groupID)},
			},
			{
				{Text: n.buttons.StopButton, CallbackData: handlers.CallbackStop},
			},
		},
	}
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
