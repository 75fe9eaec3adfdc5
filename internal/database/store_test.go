package database

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/uptimebot/internal/storage"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := NewDB(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { CloseDB(db) })
	return NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestIntervals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	today := time.Date(2025, 2, 27, 9, 0, 0, 0, time.UTC)
	secs := 300.0

	rows := []storage.IntervalRow{
		{GroupID: -1001, TopicID: 3, Phone: "111111111", Started: "2025-02-27T11:50:00", Stopped: "2025-02-27T11:55:00", DowntimeSeconds: &secs, TopicName: "Line 3", GroupTitle: "Ops"},
		{GroupID: -1001, TopicID: 3, Phone: "222222222", Started: "2025-02-27T12:00:00"},
		{GroupID: -1001, TopicID: 4, Phone: "333333333", Started: "2025-02-26T12:00:00"},
	}

	t.Run("save and load today", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		require.NoError(t, s.SaveIntervals(ctx, "alpha", rows))

		got, err := s.LoadIntervals(ctx, "alpha", today)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, rows[0], got[0])
		assert.Nil(t, got[1].DowntimeSeconds)
	})

	t.Run("tenants are isolated", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		require.NoError(t, s.SaveIntervals(ctx, "alpha", rows[:1]))
		require.NoError(t, s.SaveIntervals(ctx, "beta", rows[1:2]))

		a, err := s.LoadIntervals(ctx, "alpha", today)
		require.NoError(t, err)
		b, err := s.LoadIntervals(ctx, "beta", today)
		require.NoError(t, err)
		require.Len(t, a, 1)
		require.Len(t, b, 1)
		assert.Equal(t, "111111111", a[0].Phone)
		assert.Equal(t, "222222222", b[0].Phone)
	})

	t.Run("save replaces snapshot", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		require.NoError(t, s.SaveIntervals(ctx, "alpha", rows))
		require.NoError(t, s.SaveIntervals(ctx, "alpha", rows[1:2]))

		got, err := s.LoadIntervals(ctx, "alpha", today)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "222222222", got[0].Phone)
	})

	t.Run("new day loads nothing", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		require.NoError(t, s.SaveIntervals(ctx, "alpha", rows))

		got, err := s.LoadIntervals(ctx, "alpha", today.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("archive", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		require.NoError(t, s.ArchiveIntervals(ctx, "alpha", rows[:1]))
		require.NoError(t, s.ArchiveIntervals(ctx, "alpha", rows[:1]))
		require.NoError(t, s.ArchiveIntervals(ctx, "alpha", nil))

		var count int
		db := s.(*sqlxStore).db
		require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM interval_history WHERE tenant_key = ?`, "alpha"))
		assert.Equal(t, 2, count)
	})

	t.Run("empty tenant is rejected", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		assert.Error(t, s.SaveIntervals(ctx, "", rows))
		_, err := s.LoadIntervals(ctx, "", today)
		assert.Error(t, err)
	})
}

func TestTenantGroups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AddTenantGroup(ctx, &TenantGroup{TenantKey: "alpha", GroupID: -1001, GroupName: "Ops"}))
	require.NoError(t, s.AddTenantGroup(ctx, &TenantGroup{TenantKey: "alpha", GroupID: -1002, GroupName: "Field"}))
	require.NoError(t, s.AddTenantGroup(ctx, &TenantGroup{TenantKey: "beta", GroupID: -1001, GroupName: "Shared"}))
	require.NoError(t, s.AddTenantGroup(ctx, &TenantGroup{TenantKey: "alpha", GroupID: -1001, GroupName: "Operations"}))
	assert.Error(t, s.AddTenantGroup(ctx, &TenantGroup{TenantKey: "alpha"}))

	groups, err := s.ListTenantGroups(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Field", groups[0].GroupName)
	assert.Equal(t, "Operations", groups[1].GroupName)

	all, err := s.ListAllTenantGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	removed, err := s.RemoveTenantGroup(ctx, "alpha", -1002)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveTenantGroup(ctx, "alpha", -1002)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAdminChatsAndSummaries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	chat, err := s.GetAdminChat(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, chat)

	require.NoError(t, s.SaveAdminChat(ctx, &AdminChat{ChatID: 42, TenantKey: "alpha", Active: true}))
	require.NoError(t, s.SaveAdminChat(ctx, &AdminChat{ChatID: 43, TenantKey: "beta", Active: true}))
	require.NoError(t, s.SaveAdminChat(ctx, &AdminChat{ChatID: 43, TenantKey: "beta", Active: false}))

	chat, err = s.GetAdminChat(ctx, 43)
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.False(t, chat.Active)

	active, err := s.ListActiveAdminChats(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(42), active[0].ChatID)

	msg, err := s.GetSummaryMessage(ctx, "alpha", 42, -1001)
	require.NoError(t, err)
	assert.Nil(t, msg)

	require.NoError(t, s.SaveSummaryMessage(ctx, &SummaryMessage{TenantKey: "alpha", ChatID: 42, GroupID: -1001, MessageID: 7, View: "grouped"}))
	require.NoError(t, s.SaveSummaryMessage(ctx, &SummaryMessage{TenantKey: "alpha", ChatID: 42, GroupID: -1001, MessageID: 7, View: "daily"}))

	msg, err = s.GetSummaryMessage(ctx, "alpha", 42, -1001)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, 7, msg.MessageID)
	assert.Equal(t, "daily", msg.View)

	require.NoError(t, s.DeleteSummaryMessages(ctx, "alpha", 42))
	msg, err = s.GetSummaryMessage(ctx, "alpha", 42, -1001)
	require.NoError(t, err)
	assert.Nil(t, msg)

	require.NoError(t, s.RunSQLMaintenance(ctx))
	require.NoError(t, s.Ping(ctx))
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "data/bot.db", want: "data/bot.db"},
		{in: "file:data/bot.db?_pragma=busy_timeout(5000)", want: "data/bot.db"},
		{in: "file:my%20bot.db", want: "my bot.db"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractDBNameFromPath(tt.in))
		})
	}
}
