// Package emotion holds the per-user emotional bookkeeping: score sets,
// rolling-average profiles and the agent's own inner state.
package emotion

import (
	"fmt"
	"sort"
	"strings"
)

// Scores maps an emotion name to an intensity, normally in [0,1].
type Scores map[string]float64

// TrackedEmotions is the fixed set of names the analyzer is asked to rate.
var TrackedEmotions = []string{
	"happiness",
	"sadness",
	"anger",
	"fear",
	"surprise",
	"disgust",
	"love",
	"jealousy",
	"guilt",
	"pride",
	"shame",
	"compassion",
	"sympathy",
	"trust",
}

// DefaultScores is the substitute used when an analyzer reply cannot be parsed:
// every tracked emotion at 0.0.
func DefaultScores() Scores {
	s := make(Scores, len(TrackedEmotions))
	for _, name := range TrackedEmotions {
		s[name] = 0
	}
	return s
}

func (s Scores) Clone() Scores {
	if s == nil {
		return Scores{}
	}
	out := make(Scores, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Names returns the emotion names in lexical order.
func (s Scores) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// String renders the set as "name=0.50, name=0.10" in name order so the text
// placed into prompts is stable.
func (s Scores) String() string {
	if len(s) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(s))
	for _, name := range s.Names() {
		parts = append(parts, fmt.Sprintf("%s=%.2f", name, s[name]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
