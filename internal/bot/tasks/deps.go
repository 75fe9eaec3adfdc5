// Package tasks implements the scheduled jobs of the bot: the daily ledger
// rollover and SQLite maintenance.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/uptimebot/internal/config"
)

// Maintainer runs database housekeeping.
type Maintainer interface {
	RunSQLMaintenance(ctx context.Context) error
}

// RolloverFunc starts a new tracking day.
type RolloverFunc func(ctx context.Context) error

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    Maintainer
	Rollover RolloverFunc
	Config   *config.Config
}
