package reflection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sipeed/emoclaw/pkg/logger"
	"github.com/sipeed/emoclaw/pkg/providers"
)

// StageConfig is one record of the reflection_stages resource list. ID is
// the 1-based position in the chain and Name must match a tracked emotion,
// because the user's average for that emotion gates the stage.
type StageConfig struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Goal   string `json:"goal"`
	Action string `json:"action"`
}

// Instruction renders the prompt sent to the reflecting model for msg.
// Action may reference {payload} and {user_id}; when it does not mention
// {payload} the payload is appended as context.
func (c StageConfig) Instruction(msg Message) string {
	action := strings.ReplaceAll(c.Action, "{user_id}", msg.UserID)
	if strings.Contains(action, "{payload}") {
		action = strings.ReplaceAll(action, "{payload}", msg.Payload)
	} else {
		action += "\n\nContext:\n" + msg.Payload
	}
	return fmt.Sprintf("Goal: %s\n\n%s", c.Goal, action)
}

// Message travels down the chain. Payload only ever grows.
type Message struct {
	ID      uuid.UUID `json:"id"`
	UserID  string    `json:"user_id"`
	Payload string    `json:"payload"`
}

// NewMessage returns a message with a fresh random ID.
func NewMessage(userID, payload string) Message {
	return Message{ID: uuid.New(), UserID: userID, Payload: payload}
}

// GateSource supplies the user's running average for an emotion. Unknown
// users and emotions must report 0.
type GateSource interface {
	Gate(userID, emotion string) float64
}

type stage struct {
	cfg       StageConfig
	in        <-chan Message
	out       chan<- Message // nil on the last stage
	gates     GateSource
	completer providers.Completer
	timeout   time.Duration
	publish   func(Message)
}

// run serves until in is closed, then closes out so the next stage drains
// in turn.
func (s *stage) run(ctx context.Context) {
	if s.out != nil {
		defer close(s.out)
	}
	for msg := range s.in {
		msg = s.process(ctx, msg)
		if s.out != nil {
			s.out <- msg
		} else {
			s.publish(msg)
		}
	}
}

func (s *stage) process(ctx context.Context, msg Message) Message {
	gate := s.gates.Gate(msg.UserID, s.cfg.Name)
	if !(gate > 0) {
		logger.DebugCF("reflection", "Stage skipped", map[string]any{
			"stage":   s.cfg.Name,
			"user_id": msg.UserID,
			"gate":    gate,
		})
		return msg
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := s.completer.Complete(callCtx, []providers.Message{
		providers.UserMessage(s.cfg.Instruction(msg)),
	})
	if err != nil {
		logger.WarnCF("reflection", "Stage failed, forwarding payload unchanged", map[string]any{
			"stage":     s.cfg.Name,
			"user_id":   msg.UserID,
			"error":     err.Error(),
			"retryable": providers.IsRetryable(err),
		})
		return msg
	}

	msg.Payload += " --> Response " + s.cfg.Name + ": " + strings.TrimSpace(answer)
	logger.DebugCF("reflection", "Stage executed", map[string]any{
		"stage":       s.cfg.Name,
		"user_id":     msg.UserID,
		"gate":        gate,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return msg
}
