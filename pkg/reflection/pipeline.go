// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package reflection runs the chain of emotion-gated stages that annotate a
// conversation turn after the immediate reply has been sent.
//
// Each stage is a goroutine reading from its own bounded channel and writing
// to the next stage's channel; the last stage stores its output in a
// last-write-wins result slot. Messages of one user keep their relative order
// because every hop is a FIFO channel and the chain is linear.
package reflection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/emoclaw/pkg/logger"
	"github.com/sipeed/emoclaw/pkg/providers"
)

// DefaultChannelCapacity is used when Options.ChannelCapacity is zero.
const DefaultChannelCapacity = 16

var ErrPipelineClosed = errors.New("reflection pipeline closed")

// ConfigurationError reports a stage list that cannot be wired. It is only
// returned by Build.
type ConfigurationError struct {
	ID     int
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.ID == 0 {
		return "reflection: invalid stage configuration: " + e.Reason
	}
	return fmt.Sprintf("reflection: invalid stage configuration at id %d: %s", e.ID, e.Reason)
}

type Options struct {
	Gates     GateSource
	Completer providers.Completer
	// ChannelCapacity bounds every inter-stage channel.
	ChannelCapacity int
	// StageTimeout bounds each stage's completion call; zero means no bound.
	StageTimeout time.Duration
	// Result receives the final payloads. Build allocates one when nil.
	Result *Slot[Message]
	// OnResult, when set, is called after each final payload is stored.
	OnResult func(Message)
}

type Pipeline struct {
	configs []StageConfig
	stages  []*stage
	entry   chan Message
	result  *Slot[Message]
	onDone  func(Message)

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
	done    chan struct{}

	// closing wakes publishers blocked on a full entry channel.
	closing     chan struct{}
	closingOnce sync.Once
	publishers  sync.WaitGroup
	entryOnce   sync.Once
}

// Build validates configs and wires one channel per stage. The ids must be
// exactly 1..n with no gaps or duplicates, in any input order. No goroutine
// runs until Start.
func Build(configs []StageConfig, opts Options) (*Pipeline, error) {
	if opts.Gates == nil || opts.Completer == nil {
		return nil, fmt.Errorf("reflection: gate source and completer are required")
	}
	ordered, err := validate(configs)
	if err != nil {
		return nil, err
	}

	capacity := opts.ChannelCapacity
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	result := opts.Result
	if result == nil {
		result = &Slot[Message]{}
	}

	p := &Pipeline{
		configs: ordered,
		result:  result,
		onDone:  opts.OnResult,
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}

	inbound := make([]chan Message, len(ordered))
	for i := range inbound {
		inbound[i] = make(chan Message, capacity)
	}
	p.entry = inbound[0]

	for i, cfg := range ordered {
		st := &stage{
			cfg:       cfg,
			in:        inbound[i],
			gates:     opts.Gates,
			completer: opts.Completer,
			timeout:   opts.StageTimeout,
			publish:   p.store,
		}
		if i+1 < len(inbound) {
			st.out = inbound[i+1]
		}
		p.stages = append(p.stages, st)
	}
	return p, nil
}

func validate(configs []StageConfig) ([]StageConfig, error) {
	if len(configs) == 0 {
		return nil, &ConfigurationError{Reason: "no stages configured"}
	}
	ordered := append([]StageConfig(nil), configs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for i, cfg := range ordered {
		want := i + 1
		switch {
		case cfg.ID < 1:
			return nil, &ConfigurationError{ID: cfg.ID, Reason: "ids must be positive"}
		case cfg.ID < want:
			return nil, &ConfigurationError{ID: cfg.ID, Reason: "duplicate id"}
		case cfg.ID > want:
			return nil, &ConfigurationError{ID: want, Reason: fmt.Sprintf("missing, next id is %d", cfg.ID)}
		}
		if strings.TrimSpace(cfg.Name) == "" {
			return nil, &ConfigurationError{ID: cfg.ID, Reason: "stage name is empty"}
		}
	}
	return ordered, nil
}

// Start launches one worker per stage. ctx is passed to completion calls;
// cancelling it makes in-flight calls fail fast, which degrades to a plain
// pass-through. Workers exit only after Close. Start is idempotent.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startLocked(ctx)
}

func (p *Pipeline) startLocked(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true

	for _, st := range p.stages {
		p.wg.Add(1)
		go func(st *stage) {
			defer p.wg.Done()
			st.run(ctx)
		}(st)
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	logger.InfoCF("reflection", "Pipeline started", map[string]any{
		"stages": p.StageNames(),
	})
}

// Entry is stage 1's inbound channel. Sending on it after Close panics;
// Publish is the guarded alternative.
func (p *Pipeline) Entry() chan<- Message {
	return p.entry
}

// Publish hands msg to the first stage, blocking while its channel is full.
// A publisher still blocked when Close begins gets ErrPipelineClosed and its
// message is not queued.
func (p *Pipeline) Publish(ctx context.Context, msg Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPipelineClosed
	}
	p.publishers.Add(1)
	p.mu.RUnlock()
	defer p.publishers.Done()

	select {
	case p.entry <- msg:
		return nil
	case <-p.closing:
		return ErrPipelineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result is the slot the last stage writes to.
func (p *Pipeline) Result() *Slot[Message] {
	return p.result
}

func (p *Pipeline) store(msg Message) {
	p.result.Store(msg)
	logger.DebugCF("reflection", "Reflection completed", map[string]any{
		"user_id":    msg.UserID,
		"message_id": msg.ID.String(),
	})
	if p.onDone != nil {
		p.onDone(msg)
	}
}

// Stages returns the configuration in execution order.
func (p *Pipeline) Stages() []StageConfig {
	return append([]StageConfig(nil), p.configs...)
}

func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.configs))
	for i, c := range p.configs {
		names[i] = c.Name
	}
	return names
}

// Close stops accepting messages and waits until every queued message has
// reached the result slot or ctx expires. A pipeline that was never started
// is started first so nothing queued is lost.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closingOnce.Do(func() { close(p.closing) })

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.startLocked(context.WithoutCancel(ctx))
	}
	p.mu.Unlock()

	// No publisher can register once closed is set, and the registered ones
	// return promptly on closing.
	p.entryOnce.Do(func() {
		p.publishers.Wait()
		close(p.entry)
	})

	select {
	case <-p.done:
		logger.InfoC("reflection", "Pipeline drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once every worker has exited.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}
