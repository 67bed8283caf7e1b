// Package commands provides the CLI commands for the Familiar client.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/familiar-ai/familiar/internal/config"
	"github.com/familiar-ai/familiar/internal/logging"
	"github.com/familiar-ai/familiar/internal/sidecar"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	flagBaseURL      string
	flagLogLevel     string
	flagPrettyLogs   bool
	flagNoTypewriter bool
)

// cfg is loaded once in the root PersistentPreRun and shared by all
// subcommands.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "familiar",
	Short: "Familiar - terminal client for the Familiar assistant",
	Long: `Familiar is a terminal client for the Familiar sidecar backend.

Run 'familiar chat' for an interactive session, 'familiar login' to sign
in with claude.ai, or 'familiar health' to check the backend.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if flagBaseURL != "" {
			cfg.BaseURL = flagBaseURL
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		if flagPrettyLogs {
			cfg.PrettyLogs = true
		}
		if flagNoTypewriter {
			cfg.DisableTypewriter = true
		}

		logging.Init(logging.Config{
			Level:  logging.ParseLevel(cfg.LogLevel),
			Pretty: cfg.PrettyLogs,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "Sidecar backend address (default http://127.0.0.1:8765)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&flagPrettyLogs, "pretty-logs", false, "Human-readable log output")
	rootCmd.PersistentFlags().BoolVar(&flagNoTypewriter, "no-typewriter", false, "Print assistant text without the reveal effect")

	rootCmd.SetVersionTemplate(fmt.Sprintf("familiar %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(settingsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newClient builds a sidecar client from the resolved config.
func newClient() *sidecar.Client {
	return sidecar.NewClient(cfg.BaseURL)
}
