package oauth

import (
	"context"
	"sync"
	"time"
)

type memoryState struct {
	challenge string
	expiresAt time.Time
}

// memoryStateStore keeps handshake state in process memory. Expired entries
// are swept lazily on each put, so an abandoned handshake occupies a map
// slot only until the next one starts.
type memoryStateStore struct {
	mu     sync.Mutex
	states map[string]memoryState
	now    func() time.Time
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{
		states: make(map[string]memoryState),
		now:    time.Now,
	}
}

func (s *memoryStateStore) put(_ context.Context, state, challenge string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, v := range s.states {
		if !now.Before(v.expiresAt) {
			delete(s.states, k)
		}
	}

	s.states[state] = memoryState{challenge: challenge, expiresAt: now.Add(ttl)}
	return nil
}

func (s *memoryStateStore) take(_ context.Context, state string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.states[state]
	if !ok {
		return "", false, nil
	}
	delete(s.states, state)
	if !s.now().Before(v.expiresAt) {
		return "", false, nil
	}
	return v.challenge, true, nil
}
