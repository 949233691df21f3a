// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package coordinator ties the emotion profiles, the prompt gateway and the
// reflection pipeline together behind Submit and the two poll methods.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sipeed/emoclaw/pkg/emotion"
	"github.com/sipeed/emoclaw/pkg/logger"
	"github.com/sipeed/emoclaw/pkg/prompt"
	"github.com/sipeed/emoclaw/pkg/providers"
	"github.com/sipeed/emoclaw/pkg/reflection"
)

var ErrClosed = errors.New("coordinator closed")

// Reply is one value taken from a result slot.
type Reply struct {
	UserID    string    `json:"user_id"`
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

type Options struct {
	Stages           []reflection.StageConfig
	ChannelCapacity  int
	StageTimeout     time.Duration
	OutlierThreshold float64
	HistoryWindow    int
}

type Coordinator struct {
	gateway  *prompt.Gateway
	profiles *emotion.ProfileStore
	inner    *emotion.InnerState
	pipeline *reflection.Pipeline

	threshold     float64
	historyWindow int

	immediate reflection.Slot[Reply]

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []reflection.Message
	closed   bool
	outliers map[string][]string

	runCtx     context.Context
	cancelRun  context.CancelFunc
	dispatched chan struct{}
}

// New builds the pipeline from opts.Stages and starts its workers and the
// dispatcher. stageCompleter runs the stages; it is normally the same
// reflecting model the gateway uses for the analyzer. A ConfigurationError
// from the stage list is returned as is and nothing is started.
func New(gateway *prompt.Gateway, stageCompleter providers.Completer, opts Options) (*Coordinator, error) {
	if gateway == nil {
		return nil, fmt.Errorf("coordinator: gateway is required")
	}
	threshold := opts.OutlierThreshold
	if threshold <= 0 {
		threshold = emotion.DefaultOutlierThreshold
	}

	profiles := emotion.NewProfileStore(opts.HistoryWindow)
	pipeline, err := reflection.Build(opts.Stages, reflection.Options{
		Gates:           profiles,
		Completer:       stageCompleter,
		ChannelCapacity: opts.ChannelCapacity,
		StageTimeout:    opts.StageTimeout,
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		gateway:       gateway,
		profiles:      profiles,
		inner:         emotion.NewInnerState(),
		pipeline:      pipeline,
		threshold:     threshold,
		historyWindow: opts.HistoryWindow,
		outliers:      make(map[string][]string),
		runCtx:        runCtx,
		cancelRun:     cancel,
		dispatched:    make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)

	pipeline.Start(runCtx)
	go c.dispatch()
	return c, nil
}

// Submit processes one user turn. It returns once the immediate reply is in
// its slot; the reflection continues in the background. Analyzer and reply
// failures degrade silently, so the only errors are ErrClosed and an
// already-cancelled ctx. When Close wins the race against an in-flight
// Submit, the scores are already folded into the profile but neither the
// reply nor the reflection is delivered.
func (c *Coordinator) Submit(ctx context.Context, userID, userPrompt, baseAnswer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	profile := c.profiles.GetOrCreate(userID)
	scores := c.gateway.ExtractEmotionScores(ctx, userPrompt)

	outliers := profile.DetectOutliers(scores, c.threshold)
	history := profile.History(c.historyWindow)
	profile.Fold(scores)
	agentState := c.inner.Update(userID, scores)

	msgID := uuid.New()
	reply, err := c.gateway.ComposeEmpathicReply(ctx, prompt.ReplyRequest{
		UserID:     userID,
		Prompt:     userPrompt,
		History:    history,
		Scores:     scores,
		Profile:    profile.Snapshot(),
		AgentState: agentState,
		BaseAnswer: baseAnswer,
	})
	if err != nil {
		logger.WarnCF("coordinator", "Empathic reply failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		reply = strings.TrimSpace(baseAnswer)
	}

	msg := reflection.Message{
		ID:      msgID,
		UserID:  userID,
		Payload: buildPayload(userID, userPrompt, reply, agentState, outliers),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if reply != "" {
		c.immediate.Store(Reply{UserID: userID, MessageID: msgID, Content: reply})
	}
	c.outliers[userID] = outliers
	c.queue = append(c.queue, msg)
	c.cond.Signal()
	c.mu.Unlock()

	profile.AddTurn("User", userPrompt)
	if reply != "" {
		profile.AddTurn("You", reply)
	}

	logger.DebugCF("coordinator", "Turn submitted", map[string]any{
		"user_id":    userID,
		"message_id": msgID.String(),
		"outliers":   outliers,
		"samples":    profile.SampleCount(),
	})
	return nil
}

func buildPayload(userID, userPrompt, reply string, agentState emotion.Scores, outliers []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User ID: %s\n", userID)
	fmt.Fprintf(&b, "User prompt: %s\n", userPrompt)
	fmt.Fprintf(&b, "Immediate reply: %s\n", reply)
	fmt.Fprintf(&b, "Agent state: %s", agentState)
	if len(outliers) > 0 {
		fmt.Fprintf(&b, "\nUnusual emotions: %s", strings.Join(outliers, ", "))
	}
	return b.String()
}

// dispatch feeds queued messages to the pipeline in submission order. It is
// the only goroutine that blocks on pipeline backpressure.
func (c *Coordinator) dispatch() {
	defer close(c.dispatched)
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		msg := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if err := c.pipeline.Publish(c.runCtx, msg); err != nil {
			logger.WarnCF("coordinator", "Dropping reflection message", map[string]any{
				"user_id":    msg.UserID,
				"message_id": msg.ID.String(),
				"error":      err.Error(),
			})
		}
	}
}

// PollLatestImmediateResponse returns and clears the latest immediate reply.
func (c *Coordinator) PollLatestImmediateResponse() (Reply, bool) {
	return c.immediate.Take()
}

// PollLatestReflection returns and clears the latest completed reflection.
func (c *Coordinator) PollLatestReflection() (Reply, bool) {
	msg, ok := c.pipeline.Result().Take()
	if !ok {
		return Reply{}, false
	}
	return Reply{UserID: msg.UserID, MessageID: msg.ID, Content: msg.Payload}, true
}

// PromptExtension describes the user's emotional picture for callers that
// run their own model.
func (c *Coordinator) PromptExtension(userID string) string {
	profile := c.profiles.GetOrCreate(userID)
	c.mu.Lock()
	outliers := c.outliers[userID]
	c.mu.Unlock()
	return prompt.Extension(profile.Snapshot(), c.inner.Get(userID), outliers)
}

// Assess runs the meta-analysis of response against the user's recent turns.
func (c *Coordinator) Assess(ctx context.Context, userID, userPrompt, response string) prompt.Assessment {
	profile := c.profiles.GetOrCreate(userID)
	return c.gateway.AssessResponse(ctx, prompt.AssessRequest{
		Prompt:   userPrompt,
		Response: response,
		History:  profile.History(c.historyWindow),
	})
}

// Profile returns the user's averages and sample count without creating a
// profile.
func (c *Coordinator) Profile(userID string) (emotion.Scores, int, bool) {
	p, ok := c.profiles.Get(userID)
	if !ok {
		return nil, 0, false
	}
	return p.Snapshot(), p.SampleCount(), true
}

func (c *Coordinator) AgentState(userID string) emotion.Scores {
	return c.inner.Get(userID)
}

func (c *Coordinator) Stages() []reflection.StageConfig {
	return c.pipeline.Stages()
}

// Close rejects further submissions, hands every queued message to the
// pipeline and waits for the pipeline to drain. If ctx expires first the
// remaining work is abandoned.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.pipeline.Close(ctx)
	}
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()

	select {
	case <-c.dispatched:
	case <-ctx.Done():
		c.cancelRun()
		return ctx.Err()
	}

	err := c.pipeline.Close(ctx)
	if err != nil {
		c.cancelRun()
		return err
	}
	c.cancelRun()
	return nil
}
