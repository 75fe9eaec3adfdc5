package handlers

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewAddGroupHandler returns a handler for /add_group <group_id> <name>.
func NewAddGroupHandler(deps HandlerDeps) bot.HandlerFunc {
	return addGroupHandler{deps}.Handle
}

type addGroupHandler struct {
	deps HandlerDeps
}

func (h addGroupHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "add_group")
	chatID := update.Message.Chat.ID
	tenant, _ := TenantFromContext(ctx)

	groupID, name, ok := parseAddGroup(update.Message.Text)
	if !ok {
		reply(ctx, b, log, chatID, h.deps.Config.Messages.AddGroupUsage)
		return
	}

	if err := h.deps.Tracker.AddGroup(ctx, tenant, groupID, name); err != nil {
		log.ErrorContext(ctx, "Failed to add group", "tenant", tenant, "group_id", groupID, "error", err)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}
	reply(ctx, b, log, chatID, fmt.Sprintf(h.deps.Config.Messages.GroupAdded, groupID, name))
}

// NewRemoveGroupHandler returns a handler for /remove_group <group_id>.
func NewRemoveGroupHandler(deps HandlerDeps) bot.HandlerFunc {
	return removeGroupHandler{deps}.Handle
}

type removeGroupHandler struct {
	deps HandlerDeps
}

func (h removeGroupHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "remove_group")
	chatID := update.Message.Chat.ID
	tenant, _ := TenantFromContext(ctx)

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, b, log, chatID, h.deps.Config.Messages.RemoveGroupUsage)
		return
	}
	groupID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		reply(ctx, b, log, chatID, h.deps.Config.Messages.RemoveGroupUsage)
		return
	}

	removed, err := h.deps.Tracker.RemoveGroup(ctx, tenant, groupID)
	switch {
	case err != nil:
		log.ErrorContext(ctx, "Failed to remove group", "tenant", tenant, "group_id", groupID, "error", err)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
	case !removed:
		reply(ctx, b, log, chatID, fmt.Sprintf(h.deps.Config.Messages.GroupNotFound, groupID))
	default:
		reply(ctx, b, log, chatID, fmt.Sprintf(h.deps.Config.Messages.GroupRemoved, groupID))
	}
}

// NewListGroupsHandler returns a handler for /list_groups.
func NewListGroupsHandler(deps HandlerDeps) bot.HandlerFunc {
	return listGroupsHandler{deps}.Handle
}

type listGroupsHandler struct {
	deps HandlerDeps
}

func (h listGroupsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "list_groups")
	chatID := update.Message.Chat.ID
	tenant, _ := TenantFromContext(ctx)

	groups, err := h.deps.Tracker.ListGroups(ctx, tenant)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list groups", "tenant", tenant, "error", err)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}
	if len(groups) == 0 {
		reply(ctx, b, log, chatID, h.deps.Config.Messages.NoGroups)
		return
	}

	var sb strings.Builder
	sb.WriteString(html.EscapeString(h.deps.Config.Messages.GroupsHeader))
	for _, g := range groups {
		fmt.Fprintf(&sb, "\n<code>%d</code> %s", g.GroupID, html.EscapeString(g.GroupName))
	}
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: sb.String(), ParseMode: models.ParseModeHTML})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send group list", "error", err, "chat_id", chatID)
	}
}

// parseAddGroup reads "<group_id> <name...>" after the command. The name may be empty.
func parseAddGroup(text string) (int64, string, bool) {
	args := commandArgs(text)
	if len(args) == 0 {
		return 0, "", false
	}
	groupID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || groupID == 0 {
		return 0, "", false
	}
	return groupID, strings.Join(args[1:], " "), true
}
