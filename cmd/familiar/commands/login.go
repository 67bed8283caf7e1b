package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/familiar-ai/familiar/internal/auth"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with claude.ai",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord := auth.NewCoordinator(newClient())
		return runLoginFlow(cmd.Context(), coord, newRenderer())
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out of claude.ai",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord := auth.NewCoordinator(newClient())
		state, err := coord.SignOut(cmd.Context())
		if err != nil {
			return err
		}
		if state.Active {
			return fmt.Errorf("still signed in as %s", state.Account)
		}
		fmt.Println("Signed out.")
		return nil
	},
}

// runLoginFlow drives one browser login end to end: start, open the URL,
// poll until the backend reports an active session.
func runLoginFlow(ctx context.Context, coord *auth.Coordinator, r *renderer) error {
	state, err := coord.StartLogin(ctx)
	if err != nil {
		return fmt.Errorf("could not start login: %w", err)
	}
	if state.Active {
		r.info(fmt.Sprintf("Already signed in as %s.", state.Account))
		return nil
	}

	if coord.OpenLoginURL(state) {
		r.info("Opened your browser to finish signing in.")
	} else if state.Message != "" {
		r.info(state.Message)
	}

	r.info("Waiting for you to finish in the browser...")
	final, err := coord.PollForCompletion(ctx)
	if err != nil {
		return err
	}
	if !final.Active {
		msg := final.Message
		if msg == "" {
			msg = "login did not complete"
		}
		return fmt.Errorf("%s", msg)
	}

	r.info(fmt.Sprintf("Signed in as %s.", final.Account))
	return nil
}
