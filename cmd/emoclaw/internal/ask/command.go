package ask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/emoclaw/cmd/emoclaw/internal"
	"github.com/sipeed/emoclaw/pkg/coordinator"
	"github.com/sipeed/emoclaw/pkg/prompt"
)

// engine is the part of the coordinator a one-shot question needs.
type engine interface {
	Submit(ctx context.Context, userID, userPrompt, baseAnswer string) error
	PollLatestImmediateResponse() (coordinator.Reply, bool)
	PollLatestReflection() (coordinator.Reply, bool)
	Assess(ctx context.Context, userID, userPrompt, response string) prompt.Assessment
	Close(ctx context.Context) error
}

type options struct {
	message    string
	baseAnswer string
	userID     string
	wait       time.Duration
	assess     bool
}

func NewAskCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Send one message and print the reply and its reflection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.message) == "" {
				return errors.New("--message is required")
			}

			cfg, err := internal.LoadConfig(internal.ConfigPath(cmd))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := internal.SetupLogging(cfg, internal.Debug(cmd)); err != nil {
				return err
			}

			c, err := internal.NewCoordinator(cfg)
			if err != nil {
				return err
			}
			return askCmd(cmd.Context(), cmd.OutOrStdout(), c, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "Message to send")
	cmd.Flags().StringVar(&opts.baseAnswer, "base", "", "Plain answer to rewrite empathically")
	cmd.Flags().StringVarP(&opts.userID, "user", "u", "cli", "User ID the message is attributed to")
	cmd.Flags().DurationVar(&opts.wait, "wait", 2*time.Minute, "How long to wait for the reflection (0 skips it)")
	cmd.Flags().BoolVar(&opts.assess, "assess", false, "Also print a meta-analysis of the reply")

	return cmd
}

func askCmd(ctx context.Context, out io.Writer, e engine, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := e.Submit(ctx, opts.userID, opts.message, opts.baseAnswer); err != nil {
		_ = e.Close(context.Background())
		return err
	}

	reply, ok := e.PollLatestImmediateResponse()
	if ok {
		fmt.Fprintf(out, "%s %s\n", internal.Logo, reply.Content)
	} else {
		fmt.Fprintln(out, "(no reply)")
	}

	if opts.assess && ok {
		a := e.Assess(ctx, opts.userID, opts.message, reply.Content)
		data, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nAssessment:\n%s\n", data)
	}

	if opts.wait <= 0 {
		return e.Close(context.Background())
	}

	// Closing drains the pipeline, so the reflection is in its slot once
	// Close returns.
	waitCtx, cancel := context.WithTimeout(ctx, opts.wait)
	defer cancel()
	if err := e.Close(waitCtx); err != nil {
		return fmt.Errorf("waiting for reflection: %w", err)
	}
	if r, ok := e.PollLatestReflection(); ok {
		fmt.Fprintf(out, "\nReflection:\n%s\n", r.Content)
	}
	return nil
}
