package main

import (
	"io"

	"github.com/spf13/cobra"
)

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List the sign-in methods",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, io.Discard, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		for _, m := range a.orch.Methods() {
			printf(cmd, "%s\n", m)
		}
		return nil
	},
}
