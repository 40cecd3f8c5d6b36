// Package main is the entry point for the ingestion service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "contexta-ingest",
		Short: "Subject document ingestion service",
		Long: `Ingests uploaded subject documents into a pgvector collection and serves the
ingestion job API. Without a subcommand it runs serve.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file; the environment wins over it")

	cmd.AddCommand(serveCmd(&envFile))
	cmd.AddCommand(initStoreCmd(&envFile))
	return cmd
}
