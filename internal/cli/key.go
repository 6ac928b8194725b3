package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newKeyCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored backend API key",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <api-key>",
			Short: "Store the API key sent to the completion backend",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				stack, err := e.open(cmd)
				if err != nil {
					return err
				}
				defer stack.Close()

				if err := stack.Credentials.SetAPIKey(strings.TrimSpace(args[0])); err != nil {
					return fmt.Errorf("failed to store API key: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "API key stored.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget the stored API key and bearer token",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				stack, err := e.open(cmd)
				if err != nil {
					return err
				}
				defer stack.Close()

				stack.Credentials.ClearAPIKey()
				stack.Credentials.ClearToken()
				fmt.Fprintln(cmd.OutOrStdout(), "Credentials cleared.")
				return nil
			},
		},
	)

	return cmd
}
