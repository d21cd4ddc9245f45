// Package cli implements the roomline command-line interface.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/roomline/roomline/internal/config"
	"github.com/roomline/roomline/internal/db"
	"github.com/roomline/roomline/internal/logging"
	"github.com/roomline/roomline/internal/store"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "roomline",
	Short: "Inspect and maintain roomline timeline databases",
	Long: "roomline is the chunk-backed timeline cache used by chat clients.\n" +
		"This tool inspects and maintains a timeline database: chunk chains,\n" +
		"timeline snapshots, read state and chain repair.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loader := config.NewLoader()
		if cfgFile != "" {
			loader.SetConfigFile(cfgFile)
		}
		loaded, err := loader.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logging.Init(logging.Config{
			Level:        cfg.Logging.Level,
			Format:       cfg.Logging.Format,
			EnableCaller: cfg.Logging.EnableCaller,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "timeline database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetConfig returns the loaded configuration, or nil before PersistentPreRunE.
func GetConfig() *config.Config {
	return cfg
}

// openDatabase opens (and migrates) the timeline database.
func openDatabase() (*db.DB, error) {
	path := dbPath
	if path == "" && cfg != nil {
		path = cfg.DatabasePath()
	}
	if path == "" {
		return nil, fmt.Errorf("no database path; use --db or configure database.path")
	}

	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := database.Migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

// openStore opens the database and wraps it in the observable store.
func openStore() (*store.Store, error) {
	database, err := openDatabase()
	if err != nil {
		return nil, err
	}
	return store.New(database), nil
}
