package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lotas/tabforest/internal/applog"
	"github.com/lotas/tabforest/internal/model"
	"github.com/lotas/tabforest/internal/storage"
	"github.com/spf13/cobra"
)

var (
	dbPath   string
	logDir   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "tabforest",
	Short:         "Tree-structured browsing history and live tab state",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveLogDir()
		if err != nil {
			return err
		}
		if err := applog.Init(dir); err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		applog.SetLevel(applog.ParseLevel(logLevel))
		applog.Info("cli.start", "command", cmd.Name())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		applog.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		applog.Error("cli.failed", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the database (env TABFOREST_DB)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for tabforest.log (env TABFOREST_LOG_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info or error")
}

// firstNonEmpty returns the first value that is set.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveDBPath picks the database path: flag, then TABFOREST_DB, then the
// default under ~/.local/share/tabforest.
func resolveDBPath() (string, error) {
	if p := firstNonEmpty(dbPath, os.Getenv("TABFOREST_DB")); p != "" {
		return p, nil
	}
	return storage.DefaultDBPath()
}

func resolveLogDir() (string, error) {
	if d := firstNonEmpty(logDir, os.Getenv("TABFOREST_LOG_DIR")); d != "" {
		return d, nil
	}
	p, err := storage.DefaultDBPath()
	if err != nil {
		return "", err
	}
	return filepath.Dir(p), nil
}

// openModel opens the Model, creating the database directory if needed.
func openModel() (*model.Model, error) {
	path, err := resolveDBPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	return model.Open(path)
}
