package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deputeti-ai/chat-gateway/internal/translation"
)

func newDetectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <text>",
		Short: "Print the language code the translation pass would detect",
		Args:  cobra.MinimumNArgs(1),
		// Detection needs no configuration or store.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			lang := translation.English
			if translation.DetectAlbanian(strings.Join(args, " ")) {
				lang = translation.Albanian
			}
			fmt.Fprintln(cmd.OutOrStdout(), lang)
			return nil
		},
	}
}
