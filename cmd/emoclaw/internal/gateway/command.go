package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/emoclaw/cmd/emoclaw/internal"
	"github.com/sipeed/emoclaw/pkg/agent"
	"github.com/sipeed/emoclaw/pkg/bus"
	"github.com/sipeed/emoclaw/pkg/channels"
	"github.com/sipeed/emoclaw/pkg/config"
	"github.com/sipeed/emoclaw/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func NewGatewayCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:     "gateway",
		Aliases: []string{"g"},
		Short:   "Serve the agent over WebSocket",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig(internal.ConfigPath(cmd))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if port > 0 {
				cfg.WebSocket.Enabled = true
				cfg.WebSocket.Port = port
			}
			if err := internal.SetupLogging(cfg, internal.Debug(cmd)); err != nil {
				return err
			}
			return gatewayCmd(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Enable the WebSocket channel on this port")

	return cmd
}

func eventLogger() agent.AgentEventListener {
	return agent.ListenerFunc(func(e agent.AgentEvent) {
		fields := map[string]any{"event": e.Type.String(), "user_id": e.UserID}
		if d, ok := e.Data.(agent.ErrorData); ok && d.Err != nil {
			fields["error"] = d.Err.Error()
		}
		logger.DebugCF("gateway", "Agent event", fields)
	})
}

func gatewayCmd(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	msgBus := bus.NewMessageBus()
	defer msgBus.Close()

	manager := channels.NewManager(cfg, msgBus)
	if len(manager.GetEnabledChannels()) == 0 {
		return errors.New("no channels enabled: set websocket.enabled or pass --port")
	}

	c, err := internal.NewCoordinator(cfg)
	if err != nil {
		return err
	}

	loop := agent.NewAgentLoop(msgBus, c, agent.Options{
		PollInterval: cfg.Pipeline.PollInterval(),
		Limiter:      internal.SubmitLimiter(cfg),
		Listeners:    []agent.AgentEventListener{eventLogger()},
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.StartAll(ctx); err != nil {
		_ = c.Close(context.Background())
		return err
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	fmt.Printf("%s Gateway started on %s%s\n", internal.Logo, cfg.WebSocket.Addr(), cfg.WebSocket.Path)
	fmt.Println("Press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err = <-loopDone:
	}
	fmt.Println("\nShutting down...")
	loop.Stop()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := c.Close(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Coordinator did not drain", map[string]any{"error": err.Error()})
	}
	if err := manager.StopAll(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Channel shutdown failed", map[string]any{"error": err.Error()})
	}

	fmt.Println("Gateway stopped")
	return err
}
