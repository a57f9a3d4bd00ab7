package main

import (
	"os"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	Long: `Tell the backend to end the session and forget it locally. The local
session is removed even when the backend cannot be reached.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, os.Stderr, appOptions{console: true})
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.sessions.CheckAuth(cmd.Context()); err != nil {
			a.logger.Debug().Err(err).Msg("session was already invalid")
		}
		if err := a.orch.Logout(cmd.Context()); err != nil {
			return err
		}
		printf(cmd, "Logged out\n")
		return nil
	},
}
