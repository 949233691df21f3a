// PicoClaw - Ultra-lightweight personal AI agent
// Inspired by and based on nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sipeed/emoclaw/pkg/bus"
	"github.com/sipeed/emoclaw/pkg/coordinator"
	"github.com/sipeed/emoclaw/pkg/emotion"
	"github.com/sipeed/emoclaw/pkg/logger"
	"github.com/sipeed/emoclaw/pkg/ratelimit"
	"github.com/sipeed/emoclaw/pkg/reflection"
)

const defaultPollInterval = 500 * time.Millisecond

// Engine is the part of coordinator.Coordinator the loop drives.
type Engine interface {
	Submit(ctx context.Context, userID, prompt, baseAnswer string) error
	PollLatestImmediateResponse() (coordinator.Reply, bool)
	PollLatestReflection() (coordinator.Reply, bool)
	PromptExtension(userID string) string
	Profile(userID string) (emotion.Scores, int, bool)
	Stages() []reflection.StageConfig
}

type Options struct {
	PollInterval time.Duration
	// Limiter throttles submissions per sender. Nil admits everything.
	Limiter   *ratelimit.Limiter
	Listeners []AgentEventListener
}

// AgentLoop consumes inbound messages from the bus, submits them to the
// engine and polls the engine's result slots, routing each value back to
// the channel its user last wrote from.
type AgentLoop struct {
	bus          *bus.MessageBus
	engine       Engine
	limiter      *ratelimit.Limiter
	pollInterval time.Duration
	listeners    []AgentEventListener
	running      atomic.Bool
	routes       sync.Map // userID -> route
}

type route struct {
	channel string
	chatID  string
}

func NewAgentLoop(msgBus *bus.MessageBus, engine Engine, opts Options) *AgentLoop {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &AgentLoop{
		bus:          msgBus,
		engine:       engine,
		limiter:      opts.Limiter,
		pollInterval: interval,
		listeners:    opts.Listeners,
	}
}

// Run blocks until ctx is done, Stop is called or the bus is closed.
func (al *AgentLoop) Run(ctx context.Context) error {
	al.running.Store(true)

	pollCtx, cancel := context.WithCancel(ctx)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		al.pollLoop(pollCtx)
	}()
	defer func() {
		cancel()
		<-pollDone
	}()

	for al.running.Load() {
		msg, ok := al.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		al.processMessage(ctx, msg)
	}
	return nil
}

func (al *AgentLoop) Stop() {
	al.running.Store(false)
}

// RecordRoute remembers where userID's replies should go.
func (al *AgentLoop) RecordRoute(userID, channel, chatID string) {
	al.routes.Store(userID, route{channel: channel, chatID: chatID})
}

func (al *AgentLoop) processMessage(ctx context.Context, msg bus.InboundMessage) {
	logger.InfoCF("agent", fmt.Sprintf("Processing message from %s:%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80)),
		map[string]any{
			"channel":   msg.Channel,
			"chat_id":   msg.ChatID,
			"sender_id": msg.SenderID,
		})

	al.RecordRoute(msg.SenderID, msg.Channel, msg.ChatID)

	if response, handled := al.handleCommand(msg); handled {
		al.publish(ctx, bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Kind:    bus.KindReply,
			Content: response,
		})
		return
	}

	if !al.limiter.AllowRequest(msg.SenderID) {
		al.fail(ctx, msg, errRateLimited)
		return
	}

	if err := al.engine.Submit(ctx, msg.SenderID, msg.Content, msg.BaseAnswer); err != nil {
		al.fail(ctx, msg, err)
		return
	}
	al.emit(AgentEvent{Type: EventSubmitted, UserID: msg.SenderID})

	// Submit returns with the immediate reply already stored; deliver it
	// without waiting for the next tick.
	al.Poll(ctx)
}

func (al *AgentLoop) fail(ctx context.Context, msg bus.InboundMessage, err error) {
	logger.ErrorCF("agent", "Could not submit message", map[string]any{
		"sender_id": msg.SenderID,
		"error":     err.Error(),
	})
	al.emit(AgentEvent{Type: EventError, UserID: msg.SenderID, Data: ErrorData{Err: err}})
	al.publish(ctx, bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Kind:    bus.KindError,
		Content: userFriendlyError(err),
	})
}

func (al *AgentLoop) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(al.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			al.Poll(ctx)
		}
	}
}

// Poll takes whatever is in the two result slots and routes it. It returns
// the number of messages delivered.
func (al *AgentLoop) Poll(ctx context.Context) int {
	n := 0
	if r, ok := al.engine.PollLatestImmediateResponse(); ok {
		if al.deliver(ctx, r, bus.KindReply) {
			al.emit(AgentEvent{Type: EventReplyDelivered, UserID: r.UserID, Data: DeliveredData{MessageID: r.MessageID.String(), Content: r.Content}})
			n++
		}
	}
	if r, ok := al.engine.PollLatestReflection(); ok {
		if al.deliver(ctx, r, bus.KindReflection) {
			al.emit(AgentEvent{Type: EventReflectionDelivered, UserID: r.UserID, Data: DeliveredData{MessageID: r.MessageID.String(), Content: r.Content}})
			n++
		}
	}
	return n
}

func (al *AgentLoop) deliver(ctx context.Context, r coordinator.Reply, kind string) bool {
	v, ok := al.routes.Load(r.UserID)
	if !ok {
		logger.WarnCF("agent", "No route for user, dropping", map[string]any{
			"user_id": r.UserID,
			"kind":    kind,
		})
		return false
	}
	rt := v.(route)
	return al.publish(ctx, bus.OutboundMessage{
		Channel:   rt.channel,
		ChatID:    rt.chatID,
		Kind:      kind,
		MessageID: r.MessageID.String(),
		Content:   r.Content,
	})
}

func (al *AgentLoop) publish(ctx context.Context, msg bus.OutboundMessage) bool {
	if err := al.bus.PublishOutbound(ctx, msg); err != nil {
		logger.WarnCF("agent", "Outbound message dropped", map[string]any{
			"channel": msg.Channel,
			"kind":    msg.Kind,
			"error":   err.Error(),
		})
		return false
	}
	return true
}

func (al *AgentLoop) emit(e AgentEvent) {
	for _, l := range al.listeners {
		l.OnEvent(e)
	}
}

func (al *AgentLoop) handleCommand(msg bus.InboundMessage) (string, bool) {
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, "/") {
		return "", false
	}

	parts := strings.Fields(content)
	switch parts[0] {
	case "/help":
		return "Commands: /profile, /extension, /stages, /help", true

	case "/stages":
		stages := al.engine.Stages()
		lines := make([]string, len(stages))
		for i, s := range stages {
			lines[i] = fmt.Sprintf("%d. %s: %s", s.ID, s.Name, s.Goal)
		}
		return "Reflection stages:\n" + strings.Join(lines, "\n"), true

	case "/profile":
		avg, n, ok := al.engine.Profile(msg.SenderID)
		if !ok {
			return "No emotional profile yet.", true
		}
		return fmt.Sprintf("Samples: %d\nAverages: %s", n, avg), true

	case "/extension":
		return al.engine.PromptExtension(msg.SenderID), true
	}

	return "", false
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
