package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var healthWait time.Duration

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the sidecar backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		ctx := cmd.Context()

		if healthWait > 0 {
			if err := client.WaitUntilReady(ctx, healthWait); err != nil {
				return fmt.Errorf("backend at %s did not become ready: %w", client.BaseURL(), err)
			}
		}

		health, err := client.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("backend at %s is unreachable: %w", client.BaseURL(), err)
		}

		fmt.Printf("Status: %s\n", health.Status)
		if len(health.Missing) > 0 {
			fmt.Printf("Missing: %s\n", strings.Join(health.Missing, ", "))
		}
		if !health.Ready() {
			return fmt.Errorf("backend is not ready")
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().DurationVar(&healthWait, "wait", 0, "Wait up to this long for the backend to become ready")
}
