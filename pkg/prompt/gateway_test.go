package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/emoclaw/pkg/emotion"
	"github.com/sipeed/emoclaw/pkg/providers"
)

// recorder replies with a fixed answer and keeps the last request.
type recorder struct {
	answer string
	err    error
	last   []providers.Message
	calls  int
}

func (r *recorder) Complete(_ context.Context, msgs []providers.Message) (string, error) {
	r.calls++
	r.last = msgs
	return r.answer, r.err
}

func TestExtractEmotionScores_ParsesReply(t *testing.T) {
	rec := &recorder{answer: "Sure! ```json\n{\"fear\": 0.7, \"Trust\": \"0.4\", \"joy\": 1.3, \"note\": \"n/a\"}\n```"}
	g := NewGateway(&recorder{}, rec, Persona{})

	got := g.ExtractEmotionScores(context.Background(), "I am scared")
	assert.Equal(t, emotion.Scores{"fear": 0.7, "trust": 0.4, "joy": 1.0}, got)

	require.Len(t, rec.last, 2)
	assert.Equal(t, "system", rec.last[0].Role)
	assert.Contains(t, rec.last[1].Content, "Text: I am scared")
	for _, name := range emotion.TrackedEmotions {
		assert.Contains(t, rec.last[1].Content, name)
	}
}

func TestExtractEmotionScores_NonJSONFallsBack(t *testing.T) {
	g := NewGateway(&recorder{}, &recorder{answer: "I feel like the user is sad."}, Persona{})
	assert.Equal(t, emotion.DefaultScores(), g.ExtractEmotionScores(context.Background(), "hi"))
}

func TestExtractEmotionScores_NoNumericValuesFallsBack(t *testing.T) {
	g := NewGateway(&recorder{}, &recorder{answer: `{"fear": "high", "trust": null}`}, Persona{})
	assert.Equal(t, emotion.DefaultScores(), g.ExtractEmotionScores(context.Background(), "hi"))
}

func TestExtractEmotionScores_CompleterErrorFallsBack(t *testing.T) {
	g := NewGateway(&recorder{}, &recorder{err: errors.New("connection refused")}, Persona{})
	assert.Equal(t, emotion.DefaultScores(), g.ExtractEmotionScores(context.Background(), "hi"))
}

func TestNewGateway_ReflectingDefaultsToThinking(t *testing.T) {
	thinking := &recorder{answer: `{"trust": 0.9}`}
	g := NewGateway(thinking, nil, Persona{})

	g.ExtractEmotionScores(context.Background(), "x")
	assert.Equal(t, 1, thinking.calls)
}

func TestComposeEmpathicReply_FullTemplate(t *testing.T) {
	thinking := &recorder{answer: "  I hear you.  "}
	persona := Persona{UniqueName: "Mira", Goal: "Support the user", Guardrails: []string{"No medical advice"}}
	g := NewGateway(thinking, &recorder{}, persona)

	reply, err := g.ComposeEmpathicReply(context.Background(), ReplyRequest{
		UserID:     "u1",
		Prompt:     "I failed my exam",
		History:    []emotion.Turn{{Role: "User", Content: "I studied all week"}},
		Scores:     emotion.Scores{"sadness": 0.8},
		Profile:    emotion.Scores{"sadness": 0.6},
		AgentState: emotion.InitialAgentState(),
	})
	require.NoError(t, err)
	assert.Equal(t, "I hear you.", reply)

	require.Len(t, thinking.last, 2)
	assert.Contains(t, thinking.last[0].Content, "Your name is Mira.")
	assert.Contains(t, thinking.last[0].Content, "- No medical advice")

	body := thinking.last[1].Content
	assert.True(t, strings.HasPrefix(body, FullTemplate))
	assert.Contains(t, body, "User: I studied all week")
	assert.Contains(t, body, "User Prompt: I failed my exam")
	assert.Contains(t, body, "{sadness=0.80}")
	assert.NotContains(t, body, "Existing Answer")
}

func TestComposeEmpathicReply_ReviseTemplate(t *testing.T) {
	thinking := &recorder{answer: "revised"}
	g := NewGateway(thinking, &recorder{}, Persona{})

	_, err := g.ComposeEmpathicReply(context.Background(), ReplyRequest{
		Prompt:     "How do I fix my bike?",
		BaseAnswer: "Replace the chain.",
	})
	require.NoError(t, err)

	require.Len(t, thinking.last, 1, "no system message without a persona")
	body := thinking.last[0].Content
	assert.True(t, strings.HasPrefix(body, ReviseTemplate))
	assert.Contains(t, body, "Existing Answer: Replace the chain.")
	assert.Contains(t, body, "Conversation History: (none)")
}

func TestComposeEmpathicReply_PropagatesError(t *testing.T) {
	g := NewGateway(&recorder{err: errors.New("503")}, &recorder{}, Persona{})
	_, err := g.ComposeEmpathicReply(context.Background(), ReplyRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "503")
}

func TestAssessResponse(t *testing.T) {
	reflecting := &recorder{answer: `{"fit_score": 7, "improvement_areas": "warmer tone", "hidden_emotional_points": "anxiety", "recommendations": "acknowledge"}`}
	g := NewGateway(&recorder{}, reflecting, Persona{Goal: "Be a friend"})

	a := g.AssessResponse(context.Background(), AssessRequest{Prompt: "hi", Response: "hello"})
	assert.Equal(t, FitScore("7"), a.FitScore)
	assert.Equal(t, "warmer tone", a.ImprovementAreas)
	assert.Equal(t, "anxiety", a.HiddenEmotionalPoints)

	body := reflecting.last[1].Content
	assert.Contains(t, body, "AI Goal: Be a friend")
	assert.Contains(t, body, `"fit_score"`)
	assert.Contains(t, body, `"recommendations"`)
}

func TestAssessResponse_FallsBack(t *testing.T) {
	g := NewGateway(&recorder{}, &recorder{answer: "no idea"}, Persona{})
	assert.Equal(t, DefaultAssessment(), g.AssessResponse(context.Background(), AssessRequest{}))

	g = NewGateway(&recorder{}, &recorder{err: errors.New("down")}, Persona{})
	assert.Equal(t, DefaultAssessment(), g.AssessResponse(context.Background(), AssessRequest{}))
}

func TestExtension(t *testing.T) {
	text := Extension(emotion.Scores{"fear": 0.25}, emotion.Scores{"trust": 0.5}, []string{"anger", "fear"})
	assert.Contains(t, text, "{fear=0.25}")
	assert.Contains(t, text, "{trust=0.50}")
	assert.Contains(t, text, "anger, fear")

	assert.NotContains(t, Extension(emotion.Scores{}, emotion.Scores{}, nil), "Unusual")
}
