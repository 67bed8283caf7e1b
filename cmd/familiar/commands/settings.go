package commands

import (
	"github.com/spf13/cobra"

	"github.com/familiar-ai/familiar/pkg/types"
)

var (
	setAPIKey    string
	setWorkspace string
	setAuthMode  string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show backend settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := newClient().FetchSettings(cmd.Context())
		if err != nil {
			return err
		}
		newRenderer().settings(settings)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update backend settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		var update types.SettingsUpdate
		if cmd.Flags().Changed("api-key") {
			update.APIKey = &setAPIKey
		}
		if cmd.Flags().Changed("workspace") {
			update.Workspace = &setWorkspace
		}
		if cmd.Flags().Changed("auth-mode") {
			update.AuthMode = &setAuthMode
		}

		settings, err := newClient().UpdateSettings(cmd.Context(), update)
		if err != nil {
			return err
		}
		newRenderer().settings(settings)
		return nil
	},
}

func init() {
	settingsSetCmd.Flags().StringVar(&setAPIKey, "api-key", "", "Anthropic API key")
	settingsSetCmd.Flags().StringVar(&setWorkspace, "workspace", "", "Workspace directory")
	settingsSetCmd.Flags().StringVar(&setAuthMode, "auth-mode", "", "Auth mode (api_key|claude_ai)")
	settingsCmd.AddCommand(settingsSetCmd)
}
