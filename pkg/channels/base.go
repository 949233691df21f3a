package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/sipeed/emoclaw/pkg/bus"
	"github.com/sipeed/emoclaw/pkg/logger"
)

// Channel is one front end that delivers user turns to the bus and sends
// replies back.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel carries the parts every channel shares: the bus, the sender
// allow-list and the running flag.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowList []string
	running   atomic.Bool
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus, allowList: allowList}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

func (c *BaseChannel) setRunning(v bool) { c.running.Store(v) }

// IsAllowed reports whether senderID may talk to the agent. An empty list
// allows everyone. Senders may be compound "id|username"; either half
// matches, and an "@username" entry matches the username half.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	id, user, _ := strings.Cut(senderID, "|")
	for _, allowed := range c.allowList {
		allowedID, _, _ := strings.Cut(allowed, "|")
		trimmed := strings.TrimPrefix(allowed, "@")
		switch {
		case allowed == senderID,
			allowedID == id,
			user != "" && trimmed == user:
			return true
		}
	}
	return false
}

// HandleMessage publishes one user turn to the bus. Senders outside the
// allow-list are dropped.
func (c *BaseChannel) HandleMessage(ctx context.Context, senderID, chatID, content, baseAnswer string, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		logger.WarnCF("channels", "Message from unlisted sender dropped", map[string]any{
			"channel":   c.name,
			"sender_id": senderID,
		})
		return
	}

	err := c.bus.PublishInbound(ctx, bus.InboundMessage{
		Channel:    c.name,
		SenderID:   senderID,
		ChatID:     chatID,
		Content:    content,
		BaseAnswer: baseAnswer,
		Metadata:   metadata,
	})
	if err != nil {
		logger.WarnCF("channels", "Inbound message dropped", map[string]any{
			"channel": c.name,
			"error":   err.Error(),
		})
	}
}
