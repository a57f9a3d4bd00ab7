package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/internal/config"
	"github.com/spf13/cobra"
)

// Exit codes for scripting
const (
	ExitCodeSuccess      = 0
	ExitCodeError        = 1
	ExitCodeAuthRequired = 2
	ExitCodeAuthFailed   = 3
)

var (
	cfg      config.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "chomp-auth",
	Short: "Authenticate against a Chomp backend",
	Long: `chomp-auth signs in to a Chomp backend with a static token, an OAuth2
provider or a wallet signature, and keeps the session for later commands.

Configuration is read from CHOMP_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override CHOMP_LOG_LEVEL")
	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd, methodsCmd, serveCmd)
}

// Execute runs the root command and exits with a code matching the failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	if errors.Is(err, core.ErrNotAuthenticated) {
		return ExitCodeAuthRequired
	}
	var ae *core.AuthError
	if errors.As(err, &ae) {
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
