package transcript

import (
	"strings"
	"sync"
	"time"
)

const (
	// displayCap bounds the on-screen transcription list.
	displayCap = 5
	// defaultDisplayTTL is how long a block stays on screen.
	defaultDisplayTTL = 30 * time.Second
)

// Store owns the session's transcript state: the bounded display list, the
// unbounded history, and the interviewer-only accumulator used by question
// detection. All mutation goes through Append; readers get snapshots.
type Store struct {
	mu          sync.Mutex
	display     []Block
	history     []Block
	accumulated strings.Builder
	displayTTL  time.Duration
	onChange    func()
}

// NewStore constructs an empty store with the 30-second display TTL.
func NewStore() *Store {
	return &Store{displayTTL: defaultDisplayTTL}
}

// SetDisplayTTL overrides the display TTL. Intended for tests.
func (s *Store) SetDisplayTTL(ttl time.Duration) {
	s.mu.Lock()
	s.displayTTL = ttl
	s.mu.Unlock()
}

// SetOnChange registers a callback fired after every display-list mutation.
// Display collaborators use it to re-render from a fresh snapshot.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Append records a block in the display list (evicting the oldest past the
// cap and scheduling the TTL expiry), the history, and, for interviewer
// speech, the accumulator.
func (s *Store) Append(b Block) {
	s.mu.Lock()
	s.display = append(s.display, b)
	if len(s.display) > displayCap {
		s.display = s.display[len(s.display)-displayCap:]
	}
	s.history = append(s.history, b)
	if b.Speaker == RoleInterviewer {
		s.accumulated.WriteString(" ")
		s.accumulated.WriteString(b.Text)
	}
	ttl := s.displayTTL
	notify := s.onChange
	s.mu.Unlock()

	// Each block expires independently, identified by its timestamp.
	time.AfterFunc(ttl, func() { s.expire(b.Timestamp) })
	if notify != nil {
		notify()
	}
}

func (s *Store) expire(ts time.Time) {
	s.mu.Lock()
	kept := s.display[:0]
	for _, b := range s.display {
		if !b.Timestamp.Equal(ts) {
			kept = append(kept, b)
		}
	}
	s.display = kept
	notify := s.onChange
	s.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Display returns a snapshot of the visible blocks, oldest first.
func (s *Store) Display() []Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Block, len(s.display))
	copy(out, s.display)
	return out
}

// History returns a snapshot of every block recorded this session.
func (s *Store) History() []Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Block, len(s.history))
	copy(out, s.history)
	return out
}

// Recent returns a snapshot of the last n history entries, oldest first.
func (s *Store) Recent(n int) []Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.history) - n
	if start < 0 {
		start = 0
	}
	out := make([]Block, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

// LastBySpeaker returns the most recent history entry spoken by role.
func (s *Store) LastBySpeaker(role Role) (Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Speaker == role {
			return s.history[i], true
		}
	}
	return Block{}, false
}

// Last returns the most recent history entry of any role.
func (s *Store) Last() (Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return Block{}, false
	}
	return s.history[len(s.history)-1], true
}

// AccumulatedTranscript returns the cumulative interviewer text.
func (s *Store) AccumulatedTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.accumulated.String())
}
