package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Generate tasting profiles for unverified wines",
	Long:  "Sweeps unverified catalog entries through Claude profile generation. Profiles that pass the quality gate are stored and the wine is marked verified.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sched, err := env.enrichScheduler()
		if err != nil {
			return err
		}

		stats, err := sched.Run(ctx)
		if stats != nil {
			cmd.Printf("Enrichment sweep\n")
			cmd.Printf("  candidates: %d\n", stats.Candidates)
			cmd.Printf("  enriched:   %d\n", stats.Enriched)
			cmd.Printf("  skipped:    %d\n", stats.Skipped)
			cmd.Printf("  errors:     %d\n", stats.Errors)
			cmd.Printf("  elapsed:    %s\n", stats.Elapsed.Round(fmtRound))
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
