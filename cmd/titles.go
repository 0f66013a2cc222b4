package cmd

import (
	"fmt"

	"github.com/lotas/tabforest/internal/titles"
	"github.com/spf13/cobra"
)

var titlesLimit int

var titlesCmd = &cobra.Command{
	Use:   "titles",
	Short: "Fetch titles for pages that don't have one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openModel()
		if err != nil {
			return err
		}
		defer m.Close()

		res, err := titles.Backfill(cmd.Context(), m, titlesLimit, titles.FetchTitle, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\nDone: %d titled, %d errors\n", res.Titled, res.Failed)
		return nil
	},
}

func init() {
	titlesCmd.Flags().IntVar(&titlesLimit, "limit", 50, "Maximum number of pages to fetch")
	rootCmd.AddCommand(titlesCmd)
}
