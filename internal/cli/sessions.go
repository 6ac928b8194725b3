package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/deputeti-ai/chat-gateway/internal/model"
)

// Output formats for sessions show.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func newSessionsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored conversations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored conversations, most recent first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				stack, err := e.open(cmd)
				if err != nil {
					return err
				}
				defer stack.Close()

				writeSessionTable(cmd.OutOrStdout(), stack.Sessions.List())
				return nil
			},
		},
		newShowCommand(e),
		&cobra.Command{
			Use:   "delete <session-id>",
			Short: "Delete a stored conversation",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				stack, err := e.open(cmd)
				if err != nil {
					return err
				}
				defer stack.Close()

				if err := stack.Sessions.Remove(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete session: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
				return nil
			},
		},
	)

	return cmd
}

func newShowCommand(e *env) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := e.open(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			sess, ok := stack.Sessions.Load(args[0])
			if !ok {
				return fmt.Errorf("session %s not found", args[0])
			}
			return writeSession(cmd.OutOrStdout(), sess, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json or yaml")
	return cmd
}

func writeSession(w io.Writer, sess *model.ConversationSession, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sess); err != nil {
			return err
		}
		return enc.Close()
	case formatText, "":
		fmt.Fprintf(w, "Session:      %s\n", sess.SessionID)
		if sess.ConversationID != "" {
			fmt.Fprintf(w, "Conversation: %s\n", sess.ConversationID)
		}
		fmt.Fprintf(w, "Updated:      %s\n\n", sess.LastUpdated.Local().Format(time.RFC1123))
		for _, m := range sess.Messages {
			fmt.Fprintf(w, "[%s]\n%s\n\n", m.Role, m.Content)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (use text, json or yaml)", format)
	}
}

func writeSessionTable(w io.Writer, entries []model.SessionIndexEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No conversations.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMESSAGES\tUPDATED\tPREVIEW")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			e.SessionID,
			e.MessageCount,
			e.LastUpdated.Local().Format("2006-01-02 15:04"),
			e.Preview,
		)
	}
	tw.Flush()
}
