package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cellarworks/cellar-cli/internal/model"
)

const fmtRound = 10 * time.Millisecond

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a raw wine list into the catalog",
	Long:  "Reads a wine list from a file (or stdin when no file is given), extracts a structured record per line, and merges the results into the catalog.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var raw []byte
		var err error
		if len(args) == 1 {
			raw, err = os.ReadFile(args[0])
			if err != nil {
				return eris.Wrapf(err, "read %s", args[0])
			}
		} else {
			raw, err = io.ReadAll(os.Stdin)
			if err != nil {
				return eris.Wrap(err, "read stdin")
			}
		}

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, stats, err := env.ingest.IngestText(ctx, string(raw))
		if stats != nil {
			printRunStats(cmd, run, stats)
		}
		return err
	},
}

func printRunStats(cmd *cobra.Command, run *model.Run, stats *model.RunStats) {
	cmd.Printf("Run %s\n", run.ID)
	cmd.Printf("  lines:      %d\n", stats.TotalLines)
	cmd.Printf("  stored:     %d (%d via fallback)\n", stats.Processed, stats.Fallbacks)
	cmd.Printf("  rejected:   %d\n", stats.Rejected)
	cmd.Printf("  errors:     %d\n", stats.Errors)
	cmd.Printf("  catalog:    %d wines\n", stats.DatabaseTotal)
	cmd.Printf("  elapsed:    %s\n", stats.Elapsed.Round(fmtRound))
	for _, w := range stats.Sample {
		line := w.Name
		if w.Vintage != "" {
			line = fmt.Sprintf("%s (%s)", line, w.Vintage)
		}
		cmd.Printf("    - %s\n", line)
	}
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
