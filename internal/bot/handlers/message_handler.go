package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/uptimebot/internal/tracker"
)

// NewMessageHandler returns the default handler. Group messages and their
// edits are queued on the tracker; in private chats a plain text answering an
// access key prompt is used to log in.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return messageHandler{deps}.Handle
}

type messageHandler struct {
	deps HandlerDeps
}

func (h messageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "message")

	msg, edited := update.Message, false
	if msg == nil {
		msg, edited = update.EditedMessage, true
	}
	if msg == nil {
		log.DebugContext(ctx, "Ignoring update without message", "update_id", update.ID)
		return
	}

	switch msg.Chat.Type {
	case models.ChatTypePrivate:
		text := strings.TrimSpace(msg.Text)
		if edited || text == "" || strings.HasPrefix(text, "/") || !h.deps.Pending.Has(msg.Chat.ID) {
			return
		}
		login(ctx, b, h.deps, log, msg.Chat.ID, text)

	case models.ChatTypeGroup, models.ChatTypeSupergroup:
		if name, topicID, ok := topicName(msg); ok {
			h.deps.Tracker.RecordTopicName(msg.Chat.ID, topicID, name)
		}
		in, ok := toTrackerMessage(msg, edited)
		if !ok {
			return
		}
		if !h.deps.Tracker.Submit(ctx, in) {
			log.WarnContext(ctx, "Tracker closed, message dropped", "chat_id", msg.Chat.ID, "message_id", msg.ID)
		}
	}
}

// toTrackerMessage converts a group message. Messages outside a forum topic
// use the group id as their topic. Edits keep the original send time.
func toTrackerMessage(msg *models.Message, edited bool) (tracker.Message, bool) {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.TrimSpace(text) == "" {
		return tracker.Message{}, false
	}

	topicID := msg.Chat.ID
	if msg.IsTopicMessage && msg.MessageThreadID != 0 {
		topicID = int64(msg.MessageThreadID)
	}

	return tracker.Message{
		Text:      text,
		GroupID:   msg.Chat.ID,
		TopicID:   topicID,
		ChatTitle: msg.Chat.Title,
		SentAt:    time.Unix(int64(msg.Date), 0),
		Edited:    edited,
	}, true
}

// topicName returns the forum topic name carried by a service message or by
// the topic creation message a topic message replies to.
func topicName(msg *models.Message) (string, int64, bool) {
	if msg.ForumTopicCreated != nil && msg.MessageThreadID != 0 {
		return msg.ForumTopicCreated.Name, int64(msg.MessageThreadID), true
	}
	if msg.ForumTopicEdited != nil && msg.ForumTopicEdited.Name != "" && msg.MessageThreadID != 0 {
		return msg.ForumTopicEdited.Name, int64(msg.MessageThreadID), true
	}
	if r := msg.ReplyToMessage; r != nil && r.ForumTopicCreated != nil && msg.MessageThreadID != 0 {
		return r.ForumTopicCreated.Name, int64(msg.MessageThreadID), true
	}
	return "", 0, false
}
