// Package prompt owns every instruction sent to the language models: the
// empathic reply, the emotion analyzer and the response assessment.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sipeed/emoclaw/pkg/emotion"
	"github.com/sipeed/emoclaw/pkg/logger"
	"github.com/sipeed/emoclaw/pkg/providers"
)

// Gateway wraps two completers. The thinking completer writes replies; the
// reflecting completer scores emotions and assesses replies.
type Gateway struct {
	thinking   providers.Completer
	reflecting providers.Completer
	persona    Persona
}

// NewGateway returns a Gateway. A nil reflecting completer reuses thinking.
func NewGateway(thinking, reflecting providers.Completer, persona Persona) *Gateway {
	if reflecting == nil {
		reflecting = thinking
	}
	return &Gateway{thinking: thinking, reflecting: reflecting, persona: persona}
}

func (g *Gateway) Persona() Persona { return g.persona }

// ReplyRequest carries everything interpolated into the empathic prompt.
type ReplyRequest struct {
	UserID     string
	Prompt     string
	History    []emotion.Turn
	Scores     emotion.Scores // extracted from Prompt
	Profile    emotion.Scores // running averages
	AgentState emotion.Scores
	BaseAnswer string
}

// Instruction builds the empathic prompt: the revise template when a base
// answer is present, the full template otherwise.
func (r ReplyRequest) Instruction() string {
	var b strings.Builder
	if strings.TrimSpace(r.BaseAnswer) == "" {
		b.WriteString(FullTemplate)
	} else {
		b.WriteString(ReviseTemplate)
	}
	fmt.Fprintf(&b, "\nConversation History: %s\n", renderHistory(r.History))
	fmt.Fprintf(&b, "User Prompt: %s\n", r.Prompt)
	fmt.Fprintf(&b, "User's emotions expressed in the latest prompt: %s\n", r.Scores)
	fmt.Fprintf(&b, "Your overall emotional picture of the user: %s\n", r.Profile)
	fmt.Fprintf(&b, "Your current emotional state: %s\n", r.AgentState)
	if strings.TrimSpace(r.BaseAnswer) != "" {
		fmt.Fprintf(&b, "Existing Answer: %s\n", r.BaseAnswer)
	}
	return b.String()
}

func (g *Gateway) withPersona(user string) []providers.Message {
	var msgs []providers.Message
	if sys := g.persona.SystemPrompt(); sys != "" {
		msgs = append(msgs, providers.SystemMessage(sys))
	}
	return append(msgs, providers.UserMessage(user))
}

// ComposeEmpathicReply returns the thinking model's raw text. Errors come
// only from the completer.
func (g *Gateway) ComposeEmpathicReply(ctx context.Context, req ReplyRequest) (string, error) {
	out, err := g.thinking.Complete(ctx, g.withPersona(req.Instruction()))
	if err != nil {
		return "", fmt.Errorf("compose empathic reply: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ExtractEmotionScores asks the reflecting model to rate text. It never
// fails: any completion error or unusable reply yields emotion.DefaultScores.
func (g *Gateway) ExtractEmotionScores(ctx context.Context, text string) emotion.Scores {
	raw, err := g.reflecting.Complete(ctx, []providers.Message{
		providers.SystemMessage(analyzerSystem),
		providers.UserMessage(analyzerInstruction(text)),
	})
	if err != nil {
		logger.WarnCF("prompt", "Emotion analyzer failed, using default scores", map[string]any{
			"error": err.Error(),
		})
		return emotion.DefaultScores()
	}

	scores, err := ParseScores(raw)
	if err != nil {
		logger.WarnCF("prompt", "Emotion analyzer reply unusable, using default scores", map[string]any{
			"error": err.Error(),
			"reply": truncate(raw, 200),
		})
		return emotion.DefaultScores()
	}
	return scores
}

// ParseScores decodes an analyzer reply. Numeric values (or numeric
// strings) are kept and clamped to [0,1]; anything else is dropped. A reply
// with no usable value is an error.
func ParseScores(raw string) (emotion.Scores, error) {
	var obj map[string]any
	if err := DecodeModelJSON(raw, &obj); err != nil {
		return nil, err
	}

	scores := make(emotion.Scores, len(obj))
	for name, v := range obj {
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				continue
			}
			f = parsed
		default:
			continue
		}
		if math.IsNaN(f) {
			continue
		}
		scores[strings.ToLower(strings.TrimSpace(name))] = clamp(f)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("analyzer reply has no numeric emotion scores")
	}
	return scores, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// FitScore accepts either a JSON number or a string.
type FitScore string

func (f *FitScore) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FitScore(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FitScore(n.String())
	return nil
}

// Assessment is the meta-analysis of one reply.
type Assessment struct {
	FitScore              FitScore `json:"fit_score" jsonschema:"required" jsonschema_description:"How well the response fits, 0-10 or Low/Medium/High"`
	ImprovementAreas      string   `json:"improvement_areas" jsonschema:"required" jsonschema_description:"What could be improved"`
	HiddenEmotionalPoints string   `json:"hidden_emotional_points" jsonschema:"required" jsonschema_description:"Deeper emotional aspects not addressed"`
	Recommendations       string   `json:"recommendations" jsonschema:"required" jsonschema_description:"Next steps to make the response more empathetic"`
}

// DefaultAssessment is returned when the analysis cannot be obtained.
func DefaultAssessment() Assessment {
	return Assessment{
		FitScore:         "N/A",
		ImprovementAreas: "Could not parse the analysis response.",
	}
}

type AssessRequest struct {
	Prompt   string
	Response string
	History  []emotion.Turn
}

func (g *Gateway) assessInstruction(req AssessRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "AI Goal: %s\n", g.persona.Goal)
	fmt.Fprintf(&b, "Guardrails: %s\n\n", strings.Join(g.persona.Guardrails, "; "))
	b.WriteString("--- Conversation History Start ---")
	b.WriteString(renderHistory(req.History))
	b.WriteString("\n--- Conversation History End ---\n\n")
	fmt.Fprintf(&b, "Latest user question: %s\n", req.Prompt)
	fmt.Fprintf(&b, "Response: %s\n\n", req.Response)
	b.WriteString("1) Check how well the response aligns with the user's emotional state and writing style from the conversation history.\n")
	b.WriteString("2) Identify hidden concerns or emotional triggers that appear in the history but not in the latest question.\n")
	b.WriteString("3) Evaluate how well the response fits the goal and guardrails.\n")
	b.WriteString("4) Suggest how to improve the response in empathy, emotional alignment or style.\n\n")
	b.WriteString("Return only a JSON object matching this schema:\n")
	b.WriteString(schemaText[Assessment]())
	return b.String()
}

// AssessResponse critiques a reply for emotional fit. Like
// ExtractEmotionScores it degrades instead of failing.
func (g *Gateway) AssessResponse(ctx context.Context, req AssessRequest) Assessment {
	raw, err := g.reflecting.Complete(ctx, []providers.Message{
		providers.SystemMessage(assessSystem),
		providers.UserMessage(g.assessInstruction(req)),
	})
	if err != nil {
		logger.WarnCF("prompt", "Assessment failed", map[string]any{"error": err.Error()})
		return DefaultAssessment()
	}

	var a Assessment
	if err := DecodeModelJSON(raw, &a); err != nil {
		logger.WarnCF("prompt", "Assessment reply unusable", map[string]any{
			"error": err.Error(),
			"reply": truncate(raw, 200),
		})
		return DefaultAssessment()
	}
	return a
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
