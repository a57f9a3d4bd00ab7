package main

import (
	"os"

	"github.com/layer-3/chomp-auth/core"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session",
	Long: `Re-validate the stored session with the backend and show who is signed in.

Exits with code 2 when no valid session exists.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, os.Stderr, appOptions{console: true})
		if err != nil {
			return err
		}
		defer a.Close()

		backend := a.endpoint.Current()
		printf(cmd, "Backend:  %s (%s)\n", backend.Name, backend.URL)

		ok, err := a.sessions.CheckAuth(cmd.Context())
		if err != nil {
			printf(cmd, "Session:  invalid (%s)\n", core.AsAuthError(err).Message)
			return core.ErrNotAuthenticated
		}
		if !ok {
			printf(cmd, "Session:  none\n")
			return core.ErrNotAuthenticated
		}

		session, _ := a.sessions.Session()
		printf(cmd, "User:     %s\n", session.UserID)
		printf(cmd, "Method:   %s\n", session.Method)
		if !session.ExpiresAt.IsZero() {
			printf(cmd, "Expires:  %s\n", session.ExpiresAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}
