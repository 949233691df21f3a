package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/emoclaw/pkg/bus"
	"github.com/sipeed/emoclaw/pkg/config"
)

type recordingChannel struct {
	*BaseChannel
	mu      sync.Mutex
	sent    []bus.OutboundMessage
	stopErr error
}

func newRecordingChannel(name string) *recordingChannel {
	return &recordingChannel{BaseChannel: NewBaseChannel(name, nil, nil)}
}

func (c *recordingChannel) Start(context.Context) error {
	c.setRunning(true)
	return nil
}

func (c *recordingChannel) Stop(context.Context) error {
	c.setRunning(false)
	return c.stopErr
}

func (c *recordingChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestManager_WebSocketFromConfig(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	cfg := config.DefaultConfig()
	cfg.WebSocket.Enabled = false
	assert.Empty(t, NewManager(cfg, mb).GetEnabledChannels())

	cfg.WebSocket.Enabled = true
	m := NewManager(cfg, mb)
	assert.Equal(t, []string{"websocket"}, m.GetEnabledChannels())
	ch, ok := m.GetChannel("websocket")
	require.True(t, ok)
	assert.Equal(t, "websocket", ch.Name())
}

func TestManager_DispatchesByChannel(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	m := NewManager(nil, mb)
	a, b := newRecordingChannel("a"), newRecordingChannel("b")
	m.RegisterChannel("a", a)
	m.RegisterChannel("b", b)

	require.NoError(t, m.StartAll(context.Background()))
	assert.Equal(t, map[string]any{
		"a": map[string]any{"enabled": true, "running": true},
		"b": map[string]any{"enabled": true, "running": true},
	}, m.GetStatus())

	ctx := context.Background()
	require.NoError(t, mb.PublishOutbound(ctx, bus.OutboundMessage{Channel: "a", ChatID: "1", Content: "x"}))
	require.NoError(t, mb.PublishOutbound(ctx, bus.OutboundMessage{Channel: "missing", ChatID: "1"}))
	require.NoError(t, mb.PublishOutbound(ctx, bus.OutboundMessage{Channel: "b", ChatID: "2", Content: "y"}))
	require.NoError(t, mb.PublishOutbound(ctx, bus.OutboundMessage{Channel: "a", ChatID: "3", Content: "z"}))

	require.Eventually(t, func() bool {
		return a.sentCount() == 2 && b.sentCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.StopAll(context.Background()))
	assert.False(t, a.IsRunning())
	assert.Equal(t, "z", a.sent[1].Content)
}

func TestManager_StopAllReturnsFirstError(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	m := NewManager(nil, mb)
	ch := newRecordingChannel("a")
	ch.stopErr = errors.New("boom")
	m.RegisterChannel("a", ch)

	require.NoError(t, m.StartAll(context.Background()))
	assert.EqualError(t, m.StopAll(context.Background()), "boom")
}

func TestManager_StartAllWithoutChannels(t *testing.T) {
	m := NewManager(nil, bus.NewMessageBus())
	assert.NoError(t, m.StartAll(context.Background()))
	assert.NoError(t, m.StopAll(context.Background()))
}
