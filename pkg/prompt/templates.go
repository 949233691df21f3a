package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sipeed/emoclaw/pkg/emotion"
)

const empathicPreamble = "You are an empathetic AI agent responding to a user. Consider the following inputs to craft your response:\n" +
	"1. Conversation History: the broader context of the user's prompt. Does the prompt align with previous discussions? Is there any inconsistency in style or content?\n" +
	"2. User's Extracted Emotions: how you perceive the user's emotions right now. They naturally influence how you should respond.\n" +
	"3. Your Current Emotional State: just like a human, your own state influences your response.\n"

const reviseItem = "4. Existing Answer: a factual response that lacks emotional awareness. Revise it so it reflects the emotional background and context.\n"

const empathicClosing = "\nGiven this information, formulate the response a human would naturally give, considering their own state of mind and these contextual factors.\n" +
	"Make it empathetic, contextually relevant and consistent with your role as a helpful, emotionally aware colleague.\n"

// FullTemplate is used when the caller has no answer of its own.
var FullTemplate = empathicPreamble + empathicClosing

// ReviseTemplate is used when the caller supplies a base answer to rework.
var ReviseTemplate = empathicPreamble + reviseItem + empathicClosing

const analyzerSystem = "You are an empathic agent that is very sensitive to different emotions and that outputs a JSON object with numeric scores for each identified emotion."

func analyzerInstruction(text string) string {
	var b strings.Builder
	b.WriteString("Analyze this text and rate the following emotions from 0.0 to 1.0, where 1.0 is the maximum of the given emotion:\n")
	b.WriteString(strings.Join(emotion.TrackedEmotions, ", "))
	b.WriteString("\n\nText: ")
	b.WriteString(text)
	b.WriteString("\n\nReturn only valid JSON of the form:\n{")
	for i, name := range emotion.TrackedEmotions {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "\n  %q: 0.0", name)
	}
	b.WriteString("\n}")
	return b.String()
}

const assessSystem = "You are a meta-analysis assistant. Review the conversation history, the user's latest prompt and the response, " +
	"then critique the response for emotional fit, style coherence and hidden aspects that might have been missed."

// Persona is the agent's configured identity, the emotion_setup resource.
type Persona struct {
	UniqueName          string         `json:"unique_name"`
	Context             string         `json:"context"`
	Goal                string         `json:"goal"`
	Guardrails          []string       `json:"guardrails"`
	EmotionalParameters map[string]any `json:"emotional_parameters,omitempty"`
}

func (p Persona) IsZero() bool {
	return p.UniqueName == "" && p.Context == "" && p.Goal == "" && len(p.Guardrails) == 0 && len(p.EmotionalParameters) == 0
}

// SystemPrompt renders the persona as a system message body; empty for a
// zero persona.
func (p Persona) SystemPrompt() string {
	if p.IsZero() {
		return ""
	}
	var b strings.Builder
	if p.UniqueName != "" {
		fmt.Fprintf(&b, "Your name is %s.\n", p.UniqueName)
	}
	if p.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", p.Context)
	}
	if p.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", p.Goal)
	}
	if len(p.Guardrails) > 0 {
		b.WriteString("Guardrails:\n")
		for _, g := range p.Guardrails {
			fmt.Fprintf(&b, "- %s\n", g)
		}
	}
	if len(p.EmotionalParameters) > 0 {
		keys := make([]string, 0, len(p.EmotionalParameters))
		for k := range p.EmotionalParameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Emotional parameters:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, p.EmotionalParameters[k])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderHistory(turns []emotion.Turn) string {
	if len(turns) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "\n%s: %s", t.Role, t.Content)
	}
	return b.String()
}

// Extension describes the user's averaged emotions and the agent's state for
// callers that drive their own model and only want the emotional context.
func Extension(profile, agentState emotion.Scores, outliers []string) string {
	var b strings.Builder
	b.WriteString("Emotional context for this user:\n")
	fmt.Fprintf(&b, "- Average emotions observed so far: %s\n", profile)
	fmt.Fprintf(&b, "- Your own emotional state towards the user: %s\n", agentState)
	if len(outliers) > 0 {
		fmt.Fprintf(&b, "- Unusual in the latest message compared to the average: %s\n", strings.Join(outliers, ", "))
	}
	b.WriteString("Let this context shape the tone of your answer without mentioning the numbers.")
	return b.String()
}
