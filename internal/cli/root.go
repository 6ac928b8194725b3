// Package cli implements the deputeti terminal client: a chat REPL and
// commands to inspect the local session store.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/deputeti-ai/chat-gateway/internal/app"
	"github.com/deputeti-ai/chat-gateway/internal/config"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

// env carries the global flags and the configuration they resolve to.
type env struct {
	storePath string
	envFile   string
	logFile   string
	contract  string

	cfg *config.Config
	log *logger.Logger
}

// NewRootCommand builds the deputeti command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "deputeti",
		Short: "Chat with the Deputeti AI legal assistant",
		Long: `Chat with the Deputeti AI legal assistant from the terminal.

Conversations are kept in a local store and can be listed, exported and
deleted. Albanian questions are translated when TRANSLATION_ENABLED is set.

Quick Start:
  deputeti key set <api-key>         # Store the backend API key
  deputeti chat                      # Start a conversation
  deputeti ask "What is Article 50 TEU?"
  deputeti sessions list             # List stored conversations`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
	}

	root.PersistentFlags().StringVar(&e.storePath, "store", "", "Session store directory (default $STORE_PATH or ~/.deputeti/sessions)")
	root.PersistentFlags().StringVar(&e.envFile, "env-file", ".env", "Optional .env file with backend settings")
	root.PersistentFlags().StringVar(&e.logFile, "log-file", "", "Write JSON logs to this file")
	root.PersistentFlags().StringVar(&e.contract, "contract", "", "Backend contract: completion or conversation (default $BACKEND_CONTRACT)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newChatCommand(e),
		newAskCommand(e),
		newSessionsCommand(e),
		newKeyCommand(e),
		newDetectCommand(),
	)

	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (e *env) load() error {
	cfg := config.Load(e.envFile)

	cfg.StoreDriver = config.StorePebble
	switch {
	case e.storePath != "":
		cfg.StorePath = e.storePath
	case os.Getenv("STORE_PATH") == "":
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.StorePath = filepath.Join(home, ".deputeti", "sessions")
	}
	if e.contract != "" {
		cfg.BackendContract = e.contract
	}
	// The terminal client owns its store; nothing to relay.
	cfg.NATSURL = ""

	if err := cfg.Validate(); err != nil {
		return err
	}

	e.log = logger.Nop()
	if e.logFile != "" {
		log, err := logger.NewFile(cfg.LogLevel, e.logFile)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		e.log = log
	}

	e.cfg = cfg
	return nil
}

// open wires the chat stack. Callers must Close it; the store allows one
// process at a time.
func (e *env) open(cmd *cobra.Command) (*app.App, error) {
	if err := os.MkdirAll(filepath.Dir(e.cfg.StorePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	stack, err := app.New(cmd.Context(), e.cfg, e.log)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return stack, nil
}
