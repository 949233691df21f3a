package chat

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/sipeed/emoclaw/cmd/emoclaw/internal"
	"github.com/sipeed/emoclaw/pkg/config"
)

func NewChatCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:     "chat",
		Aliases: []string{"c"},
		Short:   "Chat with the agent interactively",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig(internal.ConfigPath(cmd))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := internal.SetupLogging(cfg, internal.Debug(cmd)); err != nil {
				return err
			}
			return chatCmd(cmd.Context(), cfg, userID)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "User ID for this conversation")

	return cmd
}

func chatCmd(ctx context.Context, cfg *config.Config, userID string) error {
	c, err := internal.NewCoordinator(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = c.Close(closeCtx)
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	historyFile := config.ResolveRuntimePaths().HistoryFile
	_ = os.MkdirAll(filepath.Dir(historyFile), 0o755)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     historyFile,
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		return newSession(c, userID, os.Stdout).run(ctx, newLineReader(os.Stdin), cfg.Pipeline.PollInterval())
	}
	defer rl.Close()

	fmt.Printf("%s Chatting as %s. Type /help for commands, exit to quit.\n\n", internal.Logo, userID)
	return newSession(c, userID, rl.Stdout()).run(ctx, rl, cfg.Pipeline.PollInterval())
}
