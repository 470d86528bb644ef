package usecase

import (
	"sync"
	"time"
)

// RateLimitService enforces a per-user sliding-window command quota. It is a
// process-scoped service: constructed once in main, injected into the engine,
// and swept periodically by the maintenance scheduler.
type RateLimitService struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time // injectable for tests
}

// NewRateLimitService creates a limiter allowing limit commands per window
// for each key. Non-positive arguments fall back to 20 commands per minute.
func NewRateLimitService(limit int, window time.Duration) *RateLimitService {
	if limit <= 0 {
		limit = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimitService{
		entries: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow records an attempt for key and reports whether it is within the
// window quota. Denied attempts are not recorded.
func (s *RateLimitService) Allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.trimLocked(key)
	if len(live) >= s.limit {
		s.entries[key] = live
		return false
	}
	s.entries[key] = append(live, s.now())
	return true
}

// Remaining reports how many commands key may still issue in the current
// window.
func (s *RateLimitService) Remaining(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.trimLocked(key)
	s.entries[key] = live
	if n := s.limit - len(live); n > 0 {
		return n
	}
	return 0
}

// Sweep drops keys whose every recorded attempt has aged out of the window.
// Called by the maintenance scheduler to bound memory on long-running
// processes.
func (s *RateLimitService) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		if live := s.trimLocked(key); len(live) == 0 {
			delete(s.entries, key)
			removed++
		} else {
			s.entries[key] = live
		}
	}
	return removed
}

// Reset clears all recorded attempts.
func (s *RateLimitService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]time.Time)
}

// trimLocked returns the attempts for key still inside the window. Caller
// holds s.mu.
func (s *RateLimitService) trimLocked(key string) []time.Time {
	cutoff := s.now().Add(-s.window)
	live := s.entries[key][:0:0]
	for _, t := range s.entries[key] {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	return live
}
