package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all available bot commands
// and keyboard callbacks.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)
	private := []tgbot.Middleware{PrivateOnly()}
	tenantOnly := []tgbot.Middleware{PrivateOnly(), TenantOnly(deps)}

	handlers["/start"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  private,
	}
	handlers["/stop"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "stop",
		Handler:     NewStopHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  private,
	}
	handlers["/help"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "help",
		Handler:     NewHelpHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  private,
	}

	handlers["/add_group"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "add_group",
		Handler:     NewAddGroupHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  tenantOnly,
	}
	handlers["/remove_group"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "remove_group",
		Handler:     NewRemoveGroupHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  tenantOnly,
	}
	handlers["/list_groups"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "list_groups",
		Handler:     NewListGroupsHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  tenantOnly,
	}

	callback := NewCallbackHandler(deps)
	for _, pattern := range []string{CallbackGroupedPrefix, CallbackDailyPrefix, CallbackStop} {
		handlers["callback:"+pattern] = RegisteredHandler{
			HandlerType: tgbot.HandlerTypeCallbackQueryData,
			Pattern:     pattern,
			Handler:     callback,
			MatchType:   tgbot.MatchTypePrefix,
		}
	}

	return handlers
}
