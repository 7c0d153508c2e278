package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"backlinks/internal/config"
	"backlinks/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

var migrateSeedUser string

func init() {
	migrateCmd.Flags().StringVar(&migrateSeedUser, "seed-user", "", "Seed sample domains owned by this user ID (development only)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")

	if migrateSeedUser == "" {
		return nil
	}
	if !cfg.IsDev() {
		return errors.New("--seed-user is only allowed in development")
	}
	if _, err := uuid.Parse(migrateSeedUser); err != nil {
		return fmt.Errorf("invalid --seed-user: %w", err)
	}
	if err := database.SeedDevDomains(ctx, migrateSeedUser); err != nil {
		return err
	}
	cmd.Println("Seeded development domains")
	return nil
}
