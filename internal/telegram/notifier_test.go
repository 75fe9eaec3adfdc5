package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/uptimebot/internal/config"
	"github.com/edgard/uptimebot/internal/database"
	"github.com/edgard/uptimebot/internal/ledger"
	"github.com/edgard/uptimebot/internal/report"
	"github.com/edgard/uptimebot/internal/tracker"
)

type fakeSender struct {
	nextID  int
	editErr error
	sent    []*bot.SendMessageParams
	edited  []*bot.EditMessageTextParams
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.nextID++
	f.sent = append(f.sent, p)
	return &models.Message{ID: f.nextID}, nil
}

func (f *fakeSender) EditMessageText(_ context.Context, p *bot.EditMessageTextParams) (*models.Message, error) {
	f.edited = append(f.edited, p)
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &models.Message{ID: p.MessageID}, nil
}

type summaryKey struct {
	chatID, groupID int64
}

type fakeStore struct {
	msgs map[summaryKey]database.SummaryMessage
}

func (f *fakeStore) GetSummaryMessage(_ context.Context, _ ledger.TenantKey, chatID, groupID int64) (*database.SummaryMessage, error) {
	m, ok := f.msgs[summaryKey{chatID, groupID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeStore) SaveSummaryMessage(_ context.Context, m *database.SummaryMessage) error {
	f.msgs[summaryKey{m.ChatID, m.GroupID}] = *m
	return nil
}

func newTestNotifier() (*Notifier, *fakeSender, *fakeStore) {
	store := &fakeStore{msgs: map[summaryKey]database.SummaryMessage{}}
	sender := &fakeSender{}
	n := NewNotifier(store, config.ReportConfig{GroupedButton: "By topic", DailyButton: "Daily", StopButton: "Stop"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.Bind(sender)
	return n, sender, store
}

func TestPublishSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	update := tracker.SummaryUpdate{Tenant: "alpha", ChatID: 1, GroupID: -100, View: report.ViewGrouped, Text: "<b>Ops</b>"}

	t.Run("send then edit", func(t *testing.T) {
		t.Parallel()
		n, sender, store := newTestNotifier()

		require.NoError(t, n.PublishSummary(ctx, update))
		require.Len(t, sender.sent, 1)
		assert.Equal(t, models.ParseModeHTML, sender.sent[0].ParseMode)
		kb, ok := sender.sent[0].ReplyMarkup.(*models.InlineKeyboardMarkup)
		require.True(t, ok)
		assert.Equal(t, "group_stats_-100", kb.InlineKeyboard[0][0].CallbackData)
		assert.Equal(t, "daily_stats_-100", kb.InlineKeyboard[0][1].CallbackData)
		assert.Equal(t, "stop_tracking", kb.InlineKeyboard[1][0].CallbackData)

		daily := update
		daily.View = report.ViewDaily
		require.NoError(t, n.PublishSummary(ctx, daily))
		require.Len(t, sender.edited, 1)
		assert.Equal(t, 1, sender.edited[0].MessageID)
		assert.Equal(t, "daily", store.msgs[summaryKey{1, -100}].View)
	})

	t.Run("not modified is ignored", func(t *testing.T) {
		t.Parallel()
		n, sender, _ := newTestNotifier()
		require.NoError(t, n.PublishSummary(ctx, update))
		sender.editErr = errors.New("bad request, Bad Request: message is not modified")
		require.NoError(t, n.PublishSummary(ctx, update))
		assert.Len(t, sender.sent, 1)
	})

	t.Run("failed edit sends a new message", func(t *testing.T) {
		t.Parallel()
		n, sender, store := newTestNotifier()
		require.NoError(t, n.PublishSummary(ctx, update))
		sender.editErr = errors.New("bad request, Bad Request: message to edit not found")
		require.NoError(t, n.PublishSummary(ctx, update))
		assert.Len(t, sender.sent, 2)
		assert.Equal(t, 2, store.msgs[summaryKey{1, -100}].MessageID)
	})

	t.Run("fresh always sends", func(t *testing.T) {
		t.Parallel()
		n, sender, _ := newTestNotifier()
		fresh := update
		fresh.Fresh = true
		require.NoError(t, n.PublishSummary(ctx, fresh))
		require.NoError(t, n.PublishSummary(ctx, fresh))
		assert.Len(t, sender.sent, 2)
		assert.Empty(t, sender.edited)
	})

	t.Run("unbound", func(t *testing.T) {
		t.Parallel()
		n := NewNotifier(&fakeStore{}, config.ReportConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
		assert.ErrorIs(t, n.PublishSummary(ctx, update), ErrNotBound)
	})
}
