package loop

import (
	"sync"
	"time"
)

// stopEntryTTL is how long a stop request stays armed if the loop never
// observes it (spec section 6: "entries auto-expire after 30 s to cover
// the case where the agent has already completed").
const stopEntryTTL = 30 * time.Second

// StopSignal is the in-process set of agent ids an external caller has
// asked to stop. The loop polls it between iterations and, during
// streaming, at StopPollInterval cadence.
type StopSignal struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

// NewStopSignal builds an empty StopSignal set.
func NewStopSignal() *StopSignal {
	return &StopSignal{expires: make(map[string]time.Time)}
}

// Request marks agentID for cooperative cancellation.
func (s *StopSignal) Request(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires[agentID] = time.Now().Add(stopEntryTTL)
}

// ShouldStop reports whether agentID currently has a live stop request,
// pruning it if expired.
func (s *StopSignal) ShouldStop(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[agentID]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(s.expires, agentID)
		return false
	}
	return true
}

// Clear removes any stop request for agentID, e.g. once the loop has
// observed and honored it.
func (s *StopSignal) Clear(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, agentID)
}
