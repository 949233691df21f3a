package emotion

import (
	"math"
	"sort"
	"sync"
)

// DefaultOutlierThreshold is the deviation from the running average above
// which a new score is flagged.
const DefaultOutlierThreshold = 0.3

// unknownAverage is the baseline assumed for an emotion never observed.
const unknownAverage = 0.5

// Turn is one entry of the conversation window kept with a profile.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Profile is the running emotional picture of one user. All methods are safe
// for concurrent use; Fold applies its count and average updates under a
// single write lock so readers never observe a half-applied sample.
type Profile struct {
	mu          sync.RWMutex
	averages    map[string]float64
	counts      map[string]int
	sampleCount int

	turns    []Turn
	maxTurns int
}

// NewProfile creates an empty profile. historyWindow bounds the number of
// conversation turns retained; zero or less keeps none.
func NewProfile(historyWindow int) *Profile {
	return &Profile{
		averages: make(map[string]float64),
		counts:   make(map[string]int),
		maxTurns: historyWindow,
	}
}

// Fold incorporates one observation. Each named average becomes the mean of
// every sample that mentioned that name; SampleCount grows by one per call.
func (p *Profile) Fold(scores Scores) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for name, value := range scores {
		n := p.counts[name]
		if n == 0 {
			p.averages[name] = value
		} else {
			p.averages[name] = (p.averages[name]*float64(n) + value) / float64(n+1)
		}
		p.counts[name] = n + 1
	}
	p.sampleCount++
}

// DetectOutliers returns, in name order, the emotions in scores whose value
// differs from the running average by more than threshold. Names never seen
// are compared against 0.5. The profile is not modified.
func (p *Profile) DetectOutliers(scores Scores, threshold float64) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []string
	for name, value := range scores {
		avg, ok := p.averages[name]
		if !ok {
			avg = unknownAverage
		}
		if math.Abs(value-avg) > threshold {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of the current averages.
func (p *Profile) Snapshot() Scores {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(Scores, len(p.averages))
	for k, v := range p.averages {
		out[k] = v
	}
	return out
}

// Average reports the running average for one emotion.
func (p *Profile) Average(name string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.averages[name]
	return v, ok
}

// SampleCount is the number of Fold calls so far.
func (p *Profile) SampleCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sampleCount
}

// AddTurn appends to the conversation window, evicting the oldest turn when
// the window is full.
func (p *Profile) AddTurn(role, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxTurns <= 0 {
		return
	}
	p.turns = append(p.turns, Turn{Role: role, Content: content})
	if over := len(p.turns) - p.maxTurns; over > 0 {
		p.turns = append([]Turn(nil), p.turns[over:]...)
	}
}

// History returns up to the last n turns, oldest first. n <= 0 returns all.
func (p *Profile) History(n int) []Turn {
	p.mu.RLock()
	defer p.mu.RUnlock()

	start := 0
	if n > 0 && n < len(p.turns) {
		start = len(p.turns) - n
	}
	out := make([]Turn, len(p.turns)-start)
	copy(out, p.turns[start:])
	return out
}
