package cmd

import (
	"github.com/lotas/tabforest/internal/tui"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Browse and edit the open trees in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openModel()
		if err != nil {
			return err
		}
		defer m.Close()
		return tui.Run(m)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
