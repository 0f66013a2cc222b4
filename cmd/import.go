package cmd

import (
	"fmt"
	"os"

	"github.com/lotas/tabforest/internal/firefox"
	"github.com/lotas/tabforest/internal/model"
	"github.com/spf13/cobra"
)

var importProfile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the windows of a Firefox session as trees",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := resolveProfile(firstNonEmpty(importProfile, os.Getenv("TABFOREST_PROFILE")))
		if err != nil {
			return err
		}
		session, err := firefox.ReadSession(profile.Session)
		if err != nil {
			return fmt.Errorf("read session: %w", err)
		}

		m, err := openModel()
		if err != nil {
			return err
		}
		defer m.Close()

		var res firefox.Result
		err = m.Write(func(w *model.Write) (err error) {
			res, err = firefox.Import(w, session)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d windows (%d tabs) from %s\n",
			len(res.Trees), res.Tabs, profile.Name)
		return nil
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List Firefox profiles with a session to import",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := firefox.DiscoverProfiles()
		if err != nil {
			return fmt.Errorf("discover profiles: %w", err)
		}
		if len(profiles) == 0 {
			return fmt.Errorf("no Firefox profiles found")
		}
		for _, p := range profiles {
			pv := firefox.PreviewProfile(p)
			suffix := ""
			if p.Default {
				suffix = " [default]"
			}
			if pv.Err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s: %v\n", p.Name, suffix, pv.Err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s: %d windows, %d tabs (%s)\n",
				p.Name, suffix, pv.Windows, pv.Tabs, p.Session)
		}
		return nil
	},
}

// resolveProfile finds the named profile, or the default one when name is
// empty.
func resolveProfile(name string) (firefox.Profile, error) {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		return firefox.Profile{}, fmt.Errorf("discover profiles: %w", err)
	}
	if name == "" {
		return firefox.DefaultProfile(profiles)
	}
	for _, p := range profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return firefox.Profile{}, fmt.Errorf("profile %q not found", name)
}

func init() {
	importCmd.Flags().StringVar(&importProfile, "profile", "", "Firefox profile name (env TABFOREST_PROFILE)")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(profilesCmd)
}
