package handlers

import (
	"log/slog"

	"github.com/edgard/uptimebot/internal/config"
	"github.com/edgard/uptimebot/internal/tracker"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Tracker *tracker.Tracker
	Pending *PendingLogins
}
