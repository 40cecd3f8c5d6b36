package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/contexta-ingest/internal/app"
)

func initStoreCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init-store",
		Short: "Create the schema and vector collection if missing, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closeLog, err := setup(*envFile)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			store, err := app.NewStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Vectors.InitStore(cmd.Context()); err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			logger.Info("store ready", "collection", store.Vectors.Collection(), "dimension", store.Embedder.Dimension())
			return nil
		},
	}
}
