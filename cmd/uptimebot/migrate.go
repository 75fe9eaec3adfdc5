package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgard/uptimebot/internal/config"
	"github.com/edgard/uptimebot/internal/database"
	"github.com/edgard/uptimebot/internal/logger"
)

// runMigrate opens the database, which applies pending migrations, and exits.
func runMigrate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	database.CloseDB(db)

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrations applied to %s\n", cfg.Database.Path)
	return err
}
