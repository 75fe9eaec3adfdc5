package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestUpdateAttrs(t *testing.T) {
	t.Parallel()

	t.Run("edited message", func(t *testing.T) {
		t.Parallel()
		update := &models.Update{ID: 1, EditedMessage: &models.Message{ID: 5, Chat: models.Chat{ID: -100}, MessageThreadID: 9, Text: "+ 380501112233"}}
		attrs := UpdateAttrs(update)
		assert.Contains(t, attrs, "edited_message")
		assert.Contains(t, attrs, 9)
	})

	t.Run("other", func(t *testing.T) {
		t.Parallel()
		attrs := UpdateAttrs(&models.Update{ID: 2})
		assert.Contains(t, attrs, "other")
	})
}

func TestMiddlewareCallsNext(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, "debug", false)

	called := false
	h := Middleware(log)(func(ctx context.Context, b *bot.Bot, update *models.Update) { called = true })
	h(context.Background(), nil, &models.Update{ID: 3, Message: &models.Message{Chat: models.Chat{ID: 1}, Text: "hi"}})

	assert.True(t, called)
	assert.True(t, strings.Contains(buf.String(), "Finished processing update"))
}

func TestTruncateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", truncateString("abc", 5))
	assert.Equal(t, "ст...", truncateString("столбец", 5))
	assert.Equal(t, "...", truncateString("abcdef", 2))
}

func TestGocronLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewGocronLogger(New(&buf, "debug", false))

	l.Error("job failed", "error", gocron.ErrJobNotFound, "dangling")
	out := buf.String()
	assert.Contains(t, out, "component=gocron")
	assert.Contains(t, out, "error_kind=job_not_found")
	assert.Contains(t, out, "dangling")
}
