// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/emoclaw/cmd/emoclaw/internal"
	"github.com/sipeed/emoclaw/cmd/emoclaw/internal/ask"
	"github.com/sipeed/emoclaw/cmd/emoclaw/internal/chat"
	"github.com/sipeed/emoclaw/cmd/emoclaw/internal/gateway"
	"github.com/sipeed/emoclaw/cmd/emoclaw/internal/stages"
	"github.com/sipeed/emoclaw/cmd/emoclaw/internal/version"
)

func NewEmoclawCommand() *cobra.Command {
	short := fmt.Sprintf("%s emoclaw - emotionally aware agent with staged reflection v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:           "emoclaw",
		Short:         short,
		Example:       "emoclaw chat\nemoclaw ask -m \"I failed my exam\"",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Config file (default "+internal.GetConfigPath()+")")
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	cmd.AddCommand(
		chat.NewChatCommand(),
		ask.NewAskCommand(),
		gateway.NewGatewayCommand(),
		stages.NewStagesCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewEmoclawCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
