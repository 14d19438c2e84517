package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"jstagram/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the pictures table",
	Long: "Runs schema migrations against the configured postgres or mysql catalog.\n" +
		"The in-memory catalog has nothing to migrate.",
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	switch cfg.CatalogBackend {
	case store.BackendPostgres, store.BackendMySQL:
	default:
		return errors.New("migrate needs catalogBackend postgres or mysql")
	}
	catalog, err := store.OpenGormCatalog(cfg.CatalogBackend, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migrate %s catalog: %w", cfg.CatalogBackend, err)
	}
	defer catalog.Close()
	slog.Info("catalog migrated", "backend", cfg.CatalogBackend)
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
