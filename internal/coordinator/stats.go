package coordinator

import (
	"sync"
	"time"

	"migration-sentinel/internal/domain"
)

// Stats counts events by terminal state for the status endpoint.
type Stats struct {
	mu        sync.Mutex
	startedAt time.Time
	lastEvent time.Time
	received  int64
	byState   map[domain.State]int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	StartedAt   time.Time              `json:"started_at"`
	LastEventAt *time.Time             `json:"last_event_at,omitempty"`
	Received    int64                  `json:"received"`
	InFlight    int64                  `json:"in_flight"`
	ByState     map[domain.State]int64 `json:"by_state"`
}

func newStats() *Stats {
	return &Stats{startedAt: time.Now(), byState: make(map[domain.State]int64)}
}

func (s *Stats) markReceived(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received++
	s.lastEvent = at
}

func (s *Stats) finished(state domain.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byState[state]++
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		StartedAt: s.startedAt,
		Received:  s.received,
		ByState:   make(map[domain.State]int64, len(s.byState)),
	}
	var done int64
	for k, v := range s.byState {
		snap.ByState[k] = v
		done += v
	}
	snap.InFlight = s.received - done
	if !s.lastEvent.IsZero() {
		t := s.lastEvent
		snap.LastEventAt = &t
	}
	return snap
}
