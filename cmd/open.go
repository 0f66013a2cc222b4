package cmd

import (
	"fmt"

	"github.com/lotas/tabforest/internal/model"
	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open <url>...",
	Short: "Open a new tree with one tab per URL",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openModel()
		if err != nil {
			return err
		}
		defer m.Close()

		var tree model.TreeID
		err = m.Write(func(w *model.Write) (err error) {
			tree, err = w.OpenTreeForURLs(args)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Opened tree %d with %d tabs\n", tree, len(args))
		return nil
	},
}

var uncloseCmd = &cobra.Command{
	Use:   "unclose",
	Short: "Reopen the most recently closed tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openModel()
		if err != nil {
			return err
		}
		defer m.Close()

		var tree model.TreeID
		err = m.Write(func(w *model.Write) (err error) {
			tree, err = w.UncloseLastClosedTree()
			return err
		})
		if err != nil {
			return err
		}
		if tree == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No closed trees.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reopened tree %d\n", tree)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(uncloseCmd)
}
