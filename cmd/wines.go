package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cellarworks/cellar-cli/internal/catalog"
)

var (
	winesPage     int
	winesPageSize int
	winesSearch   string
)

var winesCmd = &cobra.Command{
	Use:   "wines",
	Short: "List wines in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		page, err := env.store.ListWines(ctx, catalog.ListFilter{
			Page:     winesPage,
			PageSize: winesPageSize,
			Search:   winesSearch,
		})
		if err != nil {
			return err
		}

		cmd.Printf("%d wines (page %d of %d)\n", page.Total, page.CurrentPage, page.TotalPages)
		for _, w := range page.Wines {
			var parts []string
			if w.Vintage != "" {
				parts = append(parts, w.Vintage)
			}
			if w.Producer != "" {
				parts = append(parts, w.Producer)
			}
			if w.Region != "" {
				parts = append(parts, w.Region)
			}
			marker := " "
			if w.Verified {
				marker = "*"
			}
			detail := ""
			if len(parts) > 0 {
				detail = fmt.Sprintf(" (%s)", strings.Join(parts, ", "))
			}
			cmd.Printf("%s %s%s\n", marker, w.Name, detail)
		}
		return nil
	},
}

func init() {
	winesCmd.Flags().IntVar(&winesPage, "page", 1, "page number")
	winesCmd.Flags().IntVar(&winesPageSize, "page-size", catalog.DefaultPageSize, "wines per page")
	winesCmd.Flags().StringVar(&winesSearch, "search", "", "substring filter across name, vintage, producer, region, country and varietals")
	rootCmd.AddCommand(winesCmd)
}
