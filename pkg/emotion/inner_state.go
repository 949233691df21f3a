package emotion

import "sync"

// consistentFactor damps how far a single message moves the agent's state.
const consistentFactor = 0.7

// userNeutral is assumed for any user emotion the analyzer did not report.
const userNeutral = 0.5

// InitialAgentState is the agent's state towards a user it has not met yet.
func InitialAgentState() Scores {
	return Scores{
		"trust":       0.5,
		"empathy":     0.5,
		"frustration": 0.0,
		"positivity":  0.5,
		"negativity":  0.0,
		"closeness":   0.3,
	}
}

// InnerState tracks how the agent itself feels about each user.
type InnerState struct {
	mu     sync.Mutex
	states map[string]Scores
}

func NewInnerState() *InnerState {
	return &InnerState{states: make(map[string]Scores)}
}

// Get returns a copy of the agent state for userID, creating the initial
// state on first use.
func (s *InnerState) Get(userID string) Scores {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(userID).Clone()
}

func (s *InnerState) getLocked(userID string) Scores {
	st, ok := s.states[userID]
	if !ok {
		st = InitialAgentState()
		s.states[userID] = st
	}
	return st
}

// Update shifts the agent state for userID in response to the scores
// extracted from the user's latest message and returns the new state.
//
// Sustained frustration accumulates slowly and otherwise decays; trust and
// closeness drift towards what the user expresses; a message that is both
// very negative and very frustrated costs a little trust and empathy.
func (s *InnerState) Update(userID string, user Scores) Scores {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getLocked(userID)
	val := func(name string) float64 {
		if v, ok := user[name]; ok {
			return v
		}
		return userNeutral
	}

	frustration := val("frustration")
	if frustration > 0.6 {
		if st["frustration"] < 0.9 {
			st["frustration"] = clamp01(st["frustration"] + 0.05)
		}
	} else {
		st["frustration"] = clamp01(st["frustration"] - 0.02)
	}

	st["trust"] = clamp01(st["trust"] + (val("trust")-userNeutral)*0.1*consistentFactor)
	st["closeness"] = clamp01(st["closeness"] + (val("closeness")-userNeutral)*0.05*consistentFactor)

	if val("positivity") < 0.2 && frustration > 0.7 {
		st["trust"] = clamp01(st["trust"] - 0.05)
		st["empathy"] = clamp01(st["empathy"] - 0.02)
	}

	return st.Clone()
}
