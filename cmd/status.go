package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog and pipeline status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		total, err := env.store.CountWines(ctx)
		if err != nil {
			return err
		}
		unverified, err := env.store.ListUnverified(ctx, cfg.Enrich.BatchLimit)
		if err != nil {
			return err
		}

		extractor := "fallback-only (no API key)"
		if env.client != nil {
			extractor = cfg.Anthropic.Model
		}

		cmd.Printf("store:      %s (%s)\n", cfg.Store.Driver, cfg.Store.DatabaseURL)
		cmd.Printf("extractor:  %s\n", extractor)
		cmd.Printf("wines:      %d\n", total)
		cmd.Printf("unverified: %d (next sweep batch)\n", len(unverified))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
