package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deputeti-ai/chat-gateway/internal/chat"
	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/internal/service"
)

const prompt = "> "

const replHelp = `Commands:
  /new            start a new conversation
  /sessions       list stored conversations
  /open <id>      continue a stored conversation
  /delete <id>    delete a conversation
  /quit           exit`

func newChatCommand(e *env) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation with the legal assistant.

` + replHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := e.open(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			if sessionID != "" {
				if _, ok := stack.Sessions.Load(sessionID); !ok {
					return fmt.Errorf("session %s not found", sessionID)
				}
			}

			sessions := service.NewConversationSessions(stack.Sessions, e.log)
			defer sessions.Close()

			page := service.NewPage(stack.Client, stack.Sessions, sessions, sessionID, e.log)
			r := &repl{page: page, out: cmd.OutOrStdout()}

			fmt.Fprintf(r.out, "Deputeti AI (%s). Type /help for commands.\n", stack.Contract.Name())
			if sessionID != "" {
				r.printTranscript(page.Agent().Messages())
			}
			return r.run(cmd.Context(), cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Continue a stored conversation")
	return cmd
}

func newAskCommand(e *env) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question",
		Long:  `Send one message and print the reply. The turn is stored like any other conversation.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := e.open(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			sessions := service.NewConversationSessions(stack.Sessions, e.log)
			defer sessions.Close()

			page := service.NewPage(stack.Client, stack.Sessions, sessions, sessionID, e.log)
			resp, err := page.Submit(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !resp.Success {
				if resp.LoginRequired {
					return fmt.Errorf("%s (run `deputeti key set <api-key>`)", resp.Error)
				}
				return errors.New(resp.Error)
			}
			fmt.Fprintln(out, resp.Response)
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", page.Agent().SessionID())
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Append to a stored conversation")
	return cmd
}

type repl struct {
	page *service.Page
	out  io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprint(r.out, prompt)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" || line == "/exit" {
			return nil
		}
		r.handle(ctx, line)
		fmt.Fprint(r.out, prompt)
	}
	fmt.Fprintln(r.out)
	return scanner.Err()
}

func (r *repl) handle(ctx context.Context, line string) {
	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch {
	case line == "":
	case command == "/help":
		fmt.Fprintln(r.out, replHelp)
	case command == "/new":
		r.page.NewConversation(ctx)
		fmt.Fprintln(r.out, "Started a new conversation.")
	case command == "/sessions":
		writeSessionTable(r.out, r.page.Sessions().Refresh())
	case command == "/open":
		r.open(arg)
	case command == "/delete":
		if arg == "" {
			fmt.Fprintln(r.out, "usage: /delete <id>")
			return
		}
		if !r.page.DeleteSession(ctx, arg) {
			fmt.Fprintf(r.out, "Could not delete %s.\n", arg)
			return
		}
		fmt.Fprintf(r.out, "Deleted %s.\n", arg)
	case strings.HasPrefix(command, "/"):
		fmt.Fprintf(r.out, "Unknown command %s. Type /help for commands.\n", command)
	default:
		r.send(ctx, line)
	}
}

func (r *repl) open(sessionID string) {
	for _, s := range r.page.Sessions().Sessions() {
		if s.SessionID == sessionID {
			r.page.Open(sessionID)
			r.printTranscript(r.page.Agent().Messages())
			return
		}
	}
	fmt.Fprintf(r.out, "No session %q.\n", sessionID)
}

func (r *repl) send(ctx context.Context, text string) {
	isNew := r.page.Agent().SessionID() == ""

	resp, err := r.page.Submit(ctx, text)
	if errors.Is(err, chat.ErrEmptyMessage) {
		return
	}
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}

	if isNew {
		fmt.Fprintf(r.out, "(session %s)\n", r.page.Agent().SessionID())
	}
	if !resp.Success {
		fmt.Fprintf(r.out, "error: %s\n", resp.Error)
		if resp.LoginRequired {
			fmt.Fprintln(r.out, "The API key was rejected. Run `deputeti key set <api-key>` and try again.")
		}
		return
	}
	fmt.Fprintln(r.out, resp.Response)
}

func (r *repl) printTranscript(messages []model.ChatMessage) {
	for _, m := range messages {
		fmt.Fprintf(r.out, "[%s] %s\n", m.Role, m.Content)
	}
}
