package chat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/emoclaw/pkg/coordinator"
	"github.com/sipeed/emoclaw/pkg/emotion"
	"github.com/sipeed/emoclaw/pkg/prompt"
	"github.com/sipeed/emoclaw/pkg/reflection"
)

type fakeEngine struct {
	mu          sync.Mutex
	prompts     []string
	submitErr   error
	immediate   reflection.Slot[coordinator.Reply]
	reflections reflection.Slot[coordinator.Reply]
	assessed    []string
}

func (f *fakeEngine) Submit(_ context.Context, userID, userPrompt, _ string) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, userPrompt)
	f.mu.Unlock()
	f.immediate.Store(coordinator.Reply{UserID: userID, Content: "echo " + userPrompt})
	return nil
}

func (f *fakeEngine) PollLatestImmediateResponse() (coordinator.Reply, bool) { return f.immediate.Take() }
func (f *fakeEngine) PollLatestReflection() (coordinator.Reply, bool)        { return f.reflections.Take() }
func (f *fakeEngine) PromptExtension(userID string) string                   { return "ext:" + userID }
func (f *fakeEngine) AgentState(string) emotion.Scores                       { return emotion.InitialAgentState() }

func (f *fakeEngine) Assess(_ context.Context, _, userPrompt, response string) prompt.Assessment {
	f.assessed = append(f.assessed, userPrompt+"|"+response)
	return prompt.Assessment{FitScore: "7"}
}

func (f *fakeEngine) Profile(userID string) (emotion.Scores, int, bool) {
	if userID != "known" {
		return nil, 0, false
	}
	return emotion.Scores{"fear": 0.25}, 2, true
}

// lockedBuffer is safe to read while the poller writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type errReader struct{ err error }

func (r errReader) Readline() (string, error) { return "", r.err }

func TestSession_SubmitAndCommands(t *testing.T) {
	e := &fakeEngine{}
	out := &lockedBuffer{}
	s := newSession(e, "cli", out)

	in := newLineReader(strings.NewReader("hello\n\n/profile\n/state\n/extension\n/assess\n/help\nexit\nnever\n"))
	require.NoError(t, s.run(context.Background(), in, time.Hour))

	text := out.String()
	assert.Contains(t, text, "echo hello")
	assert.Contains(t, text, "No emotional profile yet.")
	assert.Contains(t, text, "Agent state: {")
	assert.Contains(t, text, "ext:cli")
	assert.Contains(t, text, "Fit: 7")
	assert.Contains(t, text, "/extension")
	assert.True(t, strings.HasSuffix(text, "Goodbye!\n"))

	assert.Equal(t, []string{"hello"}, e.prompts)
	assert.Equal(t, []string{"hello|echo hello"}, e.assessed)
}

func TestSession_KnownProfile(t *testing.T) {
	out := &lockedBuffer{}
	s := newSession(&fakeEngine{}, "known", out)

	assert.True(t, s.handle(context.Background(), "/profile"))
	assert.Equal(t, "Samples: 2\nAverages: {fear=0.25}\n", out.String())
}

func TestSession_AssessBeforeReply(t *testing.T) {
	e := &fakeEngine{}
	out := &lockedBuffer{}
	s := newSession(e, "cli", out)

	assert.True(t, s.handle(context.Background(), "/assess"))
	assert.Contains(t, out.String(), "Nothing to assess yet.")
	assert.Empty(t, e.assessed)
}

func TestSession_SubmitError(t *testing.T) {
	out := &lockedBuffer{}
	s := newSession(&fakeEngine{submitErr: coordinator.ErrClosed}, "cli", out)

	assert.True(t, s.handle(context.Background(), "hi"))
	assert.Contains(t, out.String(), "Error: "+coordinator.ErrClosed.Error())
}

func TestSession_PrintsReflections(t *testing.T) {
	e := &fakeEngine{}
	out := &lockedBuffer{}
	s := newSession(e, "cli", out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.pollReflections(ctx, 5*time.Millisecond)
	}()

	e.reflections.Store(coordinator.Reply{Content: "deep thought"})
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[reflection] deep thought")
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestSession_ReadErrors(t *testing.T) {
	s := newSession(&fakeEngine{}, "cli", &lockedBuffer{})

	assert.NoError(t, s.run(context.Background(), errReader{readline.ErrInterrupt}, time.Hour))

	boom := errors.New("tty gone")
	assert.ErrorIs(t, s.run(context.Background(), errReader{boom}, time.Hour), boom)
}

func TestNewChatCommand(t *testing.T) {
	cmd := NewChatCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "chat", cmd.Use)
	assert.True(t, cmd.HasAlias("c"))
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("user"))
}
