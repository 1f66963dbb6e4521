package cmd

import (
	"fmt"
	"os"

	"modelmap/config"
	"modelmap/database"
	"modelmap/logger"
	"modelmap/version"

	"github.com/spf13/cobra"
)

var (
	cfgFile             string
	dbPath              string // Bound to --dbpath flag
	appLogPathFlag      string
	upstreamLogPathFlag string
	logLevelFlag        string
)

var rootCmd = &cobra.Command{
	Use:     "modelmap",
	Short:   "Model-rename rules for an upstream AI gateway",
	Version: version.AppVersion,
	Long: `modelmap keeps a set of rules that rename the model identifiers an upstream AI gateway
exposes to a canonical naming scheme, and reconciles them against live channel data to produce
the enabled-models list and rename map each channel must be configured with.

Run 'modelmap server' for the HTTP API, or use the 'rules' and 'channels' commands directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == cobra.ShellCompRequestCmd || cmd.Name() == cobra.ShellCompNoDescRequestCmd {
			return nil
		}
		if err := config.Init(cfgFile, appLogPathFlag, upstreamLogPathFlag, logLevelFlag); err != nil {
			return fmt.Errorf("failed to initialize config in PersistentPreRunE: %w", err)
		}

		finalDBPath := config.AppConfig.Database.Path
		if dbPath != "" {
			expandedPath, err := config.ExpandTilde(dbPath)
			if err != nil {
				logger.Error("Error expanding tilde in --dbpath flag '%s': %v. Using original.", dbPath, err)
				expandedPath = dbPath
			}
			finalDBPath = expandedPath
			logger.Info("PersistentPreRunE: Using database path from --dbpath flag: '%s'", finalDBPath)
		}
		if finalDBPath == "" {
			logger.Error("PersistentPreRunE: Database path is empty after checking flag and config! Falling back to 'modelmap.db' in CWD.")
			finalDBPath = "modelmap.db"
		}

		if err := database.InitDB(finalDBPath); err != nil {
			return fmt.Errorf("failed to initialize database at %s: %w", finalDBPath, err)
		}
		logger.Info("Database initialized at: %s", finalDBPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := database.CloseDB(); err != nil {
			logger.Error("Error closing database: %v", err)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/modelmap/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "dbpath", "", "path to SQLite database file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&appLogPathFlag, "app-log", "", "path for the application log file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&upstreamLogPathFlag, "upstream-log", "", "path for the upstream request log file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR (overrides config/default)")
}
