package main

import (
	"errors"
	"os"

	"github.com/layer-3/chomp-auth/core"
	"github.com/spf13/cobra"
)

var (
	loginToken      string
	loginIdentifier string
	loginCallback   string
	loginYes        bool
)

var loginCmd = &cobra.Command{
	Use:   "login [method]",
	Short: "Sign in to the backend",
	Long: `Sign in with one of the methods listed by "chomp-auth methods".

Examples:
  chomp-auth login static --token demo-token
  chomp-auth login web3:evm
  chomp-auth login oauth2:github
  chomp-auth login --callback 'http://localhost:3000/login?code=...&state=...'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "static token")
	loginCmd.Flags().StringVar(&loginIdentifier, "identifier", "", "wallet address to sign with")
	loginCmd.Flags().StringVar(&loginCallback, "callback", "", "URL the OAuth2 provider redirected to")
	loginCmd.Flags().BoolVarP(&loginYes, "yes", "y", false, "sign wallet messages without asking")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if loginCallback == "" && len(args) == 0 {
		return errors.New("a method or --callback is required")
	}

	approve := promptApprove(cmd.InOrStdin(), cmd.ErrOrStderr())
	if loginYes {
		approve = autoApprove
	}
	a, err := newApp(cmd.Context(), cfg, os.Stderr, appOptions{
		navigator: printNavigator{out: cmd.OutOrStdout()},
		approve:   approve,
		console:   true,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if loginCallback != "" {
		session, _, err := a.orch.Resume(cmd.Context(), loginCallback)
		if err != nil {
			return err
		}
		printf(cmd, "Signed in as %s\n", session.UserID)
		return nil
	}

	method, err := core.ParseAuthMethod(args[0])
	if err != nil {
		return err
	}

	input := loginIdentifier
	if method.Kind == core.KindStatic {
		input = loginToken
	}

	session, err := a.orch.Begin(cmd.Context(), method, input)
	if errors.Is(err, core.ErrRedirectPending) {
		printf(cmd, "After authorizing, finish with:\n\n  chomp-auth login --callback '<redirected url>'\n")
		return nil
	}
	if err != nil {
		return err
	}

	printf(cmd, "Signed in as %s via %s\n", session.UserID, method)
	if !session.ExpiresAt.IsZero() {
		printf(cmd, "Session expires %s\n", session.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
