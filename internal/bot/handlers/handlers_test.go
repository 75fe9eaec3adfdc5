package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/uptimebot/internal/ledger"
	"github.com/edgard/uptimebot/internal/report"
)

func TestViewCallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		data    string
		view    report.View
		groupID int64
		ok      bool
	}{
		{data: "group_stats_-1001234567890", view: report.ViewGrouped, groupID: -1001234567890, ok: true},
		{data: "daily_stats_-42", view: report.ViewDaily, groupID: -42, ok: true},
		{data: "daily_stats_x", ok: false},
		{data: CallbackStop, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			t.Parallel()
			view, groupID, ok := ParseViewCallback(tt.data)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.view, view)
			assert.Equal(t, tt.groupID, groupID)
		})
	}

	view, groupID, ok := ParseViewCallback(ViewCallback(report.ViewDaily, -7))
	require.True(t, ok)
	assert.Equal(t, report.ViewDaily, view)
	assert.Equal(t, int64(-7), groupID)
	assert.Equal(t, "group_stats_5", ViewCallback(report.ViewGrouped, 5))
}

func TestParseAddGroup(t *testing.T) {
	t.Parallel()

	id, name, ok := parseAddGroup("/add_group -1001234567890 Night shift ops")
	require.True(t, ok)
	assert.Equal(t, int64(-1001234567890), id)
	assert.Equal(t, "Night shift ops", name)

	id, name, ok = parseAddGroup("/add_group@uptimebot -42")
	require.True(t, ok)
	assert.Equal(t, int64(-42), id)
	assert.Empty(t, name)

	_, _, ok = parseAddGroup("/add_group")
	assert.False(t, ok)
	_, _, ok = parseAddGroup("/add_group abc name")
	assert.False(t, ok)
}

func TestToTrackerMessage(t *testing.T) {
	t.Parallel()
	sent := time.Date(2025, 2, 27, 11, 55, 0, 0, time.UTC)

	t.Run("forum topic", func(t *testing.T) {
		t.Parallel()
		msg := &models.Message{
			Text:            "380501112233 встал 11:50",
			Chat:            models.Chat{ID: -100123, Type: models.ChatTypeSupergroup, Title: "Ops"},
			IsTopicMessage:  true,
			MessageThreadID: 42,
			Date:            int(sent.Unix()),
		}
		got, ok := toTrackerMessage(msg, false)
		require.True(t, ok)
		assert.Equal(t, int64(-100123), got.GroupID)
		assert.Equal(t, int64(42), got.TopicID)
		assert.Equal(t, "Ops", got.ChatTitle)
		assert.True(t, got.SentAt.Equal(sent))
	})

	t.Run("plain group uses group id as topic", func(t *testing.T) {
		t.Parallel()
		msg := &models.Message{Caption: "слетел", Chat: models.Chat{ID: -5, Type: models.ChatTypeGroup}, Date: int(sent.Unix())}
		got, ok := toTrackerMessage(msg, false)
		require.True(t, ok)
		assert.Equal(t, int64(-5), got.TopicID)
		assert.Equal(t, "слетел", got.Text)
	})

	t.Run("edit keeps send date", func(t *testing.T) {
		t.Parallel()
		edit := sent.Add(50 * time.Minute)
		msg := &models.Message{Text: "x", Chat: models.Chat{ID: -5}, Date: int(sent.Unix()), EditDate: int(edit.Unix())}
		got, ok := toTrackerMessage(msg, true)
		require.True(t, ok)
		assert.True(t, got.Edited)
		assert.True(t, got.SentAt.Equal(sent))
	})

	t.Run("empty text", func(t *testing.T) {
		t.Parallel()
		_, ok := toTrackerMessage(&models.Message{Text: "  ", Chat: models.Chat{ID: -5}}, false)
		assert.False(t, ok)
	})
}

func TestTopicName(t *testing.T) {
	t.Parallel()

	created := &models.Message{MessageThreadID: 9, ForumTopicCreated: &models.ForumTopicCreated{Name: "Line 9"}}
	name, topic, ok := topicName(created)
	require.True(t, ok)
	assert.Equal(t, "Line 9", name)
	assert.Equal(t, int64(9), topic)

	inTopic := &models.Message{MessageThreadID: 9, ReplyToMessage: created}
	name, _, ok = topicName(inTopic)
	require.True(t, ok)
	assert.Equal(t, "Line 9", name)

	_, _, ok = topicName(&models.Message{Text: "hi"})
	assert.False(t, ok)
}

func TestPendingLogins(t *testing.T) {
	t.Parallel()
	p := NewPendingLogins()
	assert.False(t, p.Has(1))
	p.Add(1)
	assert.True(t, p.Has(1))
	p.Remove(1)
	assert.False(t, p.Has(1))
}

func TestTenantFromContext(t *testing.T) {
	t.Parallel()
	_, ok := TenantFromContext(context.Background())
	assert.False(t, ok)

	ctx := context.WithValue(context.Background(), tenantKey{}, ledger.TenantKey("alpha"))
	tenant, ok := TenantFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, ledger.TenantKey("alpha"), tenant)
}
