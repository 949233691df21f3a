package emotion

import "sync"

// ProfileStore owns one Profile per user id. Profiles are created lazily on
// first reference and live for the life of the process.
type ProfileStore struct {
	mu            sync.RWMutex
	profiles      map[string]*Profile
	historyWindow int
}

// NewProfileStore creates profiles that keep historyWindow turns each.
func NewProfileStore(historyWindow int) *ProfileStore {
	return &ProfileStore{
		profiles:      make(map[string]*Profile),
		historyWindow: historyWindow,
	}
}

// GetOrCreate returns the user's profile, creating it if needed.
func (s *ProfileStore) GetOrCreate(userID string) *Profile {
	s.mu.RLock()
	p, ok := s.profiles[userID]
	s.mu.RUnlock()
	if ok {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		return p
	}
	p = NewProfile(s.historyWindow)
	s.profiles[userID] = p
	return p
}

// Get returns the profile without creating one.
func (s *ProfileStore) Get(userID string) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	return p, ok
}

// Gate returns the user's running average for the named emotion, or 0 when
// the user or the emotion has not been observed yet.
func (s *ProfileStore) Gate(userID, emotion string) float64 {
	p, ok := s.Get(userID)
	if !ok {
		return 0
	}
	v, _ := p.Average(emotion)
	return v
}

// Users lists known user ids in no particular order.
func (s *ProfileStore) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		out = append(out, id)
	}
	return out
}
