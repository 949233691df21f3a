package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/sipeed/emoclaw/cmd/emoclaw/internal"
	"github.com/sipeed/emoclaw/pkg/coordinator"
	"github.com/sipeed/emoclaw/pkg/emotion"
	"github.com/sipeed/emoclaw/pkg/prompt"
)

type engine interface {
	Submit(ctx context.Context, userID, userPrompt, baseAnswer string) error
	PollLatestImmediateResponse() (coordinator.Reply, bool)
	PollLatestReflection() (coordinator.Reply, bool)
	PromptExtension(userID string) string
	Assess(ctx context.Context, userID, userPrompt, response string) prompt.Assessment
	Profile(userID string) (emotion.Scores, int, bool)
	AgentState(userID string) emotion.Scores
}

type lineReader interface {
	Readline() (string, error)
}

type scannerReader struct {
	s *bufio.Scanner
}

func newLineReader(r io.Reader) lineReader {
	return &scannerReader{s: bufio.NewScanner(r)}
}

func (r *scannerReader) Readline() (string, error) {
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.s.Text(), nil
}

const helpText = `Commands:
  /profile    show your averaged emotions
  /state      show the agent's emotional state
  /extension  show the prompt extension for your profile
  /assess     assess the last reply
  exit, quit  leave the chat`

// session is one interactive conversation. Output is serialized because the
// reflection poller writes concurrently with the read loop.
type session struct {
	engine engine
	userID string

	outMu sync.Mutex
	out   io.Writer

	lastPrompt string
	lastReply  string
}

func newSession(e engine, userID string, out io.Writer) *session {
	return &session{engine: e, userID: userID, out: out}
}

func (s *session) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// run reads lines until EOF, interrupt, exit or ctx is done. Reflections
// are printed as they arrive.
func (s *session) run(ctx context.Context, in lineReader, pollInterval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		s.pollReflections(ctx, pollInterval)
	}()
	defer func() {
		cancel()
		<-pollDone
	}()

	for {
		line, err := in.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				s.printf("Goodbye!\n")
				return nil
			}
			return err
		}
		if !s.handle(ctx, line) {
			s.printf("Goodbye!\n")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle processes one input line and reports whether to keep going.
func (s *session) handle(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return true
	case "exit", "quit":
		return false
	case "/help":
		s.printf("%s\n", helpText)
	case "/profile":
		avg, n, ok := s.engine.Profile(s.userID)
		if !ok {
			s.printf("No emotional profile yet.\n")
		} else {
			s.printf("Samples: %d\nAverages: %s\n", n, avg)
		}
	case "/state":
		s.printf("Agent state: %s\n", s.engine.AgentState(s.userID))
	case "/extension":
		s.printf("%s\n", s.engine.PromptExtension(s.userID))
	case "/assess":
		if s.lastReply == "" {
			s.printf("Nothing to assess yet.\n")
			return true
		}
		a := s.engine.Assess(ctx, s.userID, s.lastPrompt, s.lastReply)
		s.printf("Fit: %s\nImprove: %s\nHidden: %s\nRecommend: %s\n",
			a.FitScore, a.ImprovementAreas, a.HiddenEmotionalPoints, a.Recommendations)
	default:
		s.submit(ctx, input)
	}
	return true
}

func (s *session) submit(ctx context.Context, input string) {
	if err := s.engine.Submit(ctx, s.userID, input, ""); err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	reply, ok := s.engine.PollLatestImmediateResponse()
	if !ok {
		s.printf("%s (no reply)\n\n", internal.Logo)
		return
	}
	s.lastPrompt, s.lastReply = input, reply.Content
	s.printf("%s %s\n\n", internal.Logo, reply.Content)
}

func (s *session) pollReflections(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r, ok := s.engine.PollLatestReflection(); ok {
				s.printf("\n[reflection] %s\n\n", r.Content)
			}
		}
	}
}
