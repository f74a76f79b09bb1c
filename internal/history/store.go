// Package history provides the per-channel rolling conversation context.
package history

import (
	"fmt"
	"sync"
	"time"
)

// Turn is one message unit stored in a channel's rolling context.
type Turn struct {
	// Author is the display name of the human sender. Empty for
	// assistant turns.
	Author string
	// Assistant marks model replies.
	Assistant bool
	// Content is the message text, already directive-stripped for
	// human turns.
	Content string
	// Seq is the monotonic insertion order within the channel. Used
	// only for ordering, never for eviction.
	Seq uint64
	// Time records when the turn was stored.
	Time time.Time
}

// channel holds one conversation's state. Each channel has its own
// mutex so activity in one channel never contends with another.
type channel struct {
	mu    sync.Mutex
	turns []Turn
	model string // active model override; empty = use default
	seq   uint64
}

// Store manages rolling conversation context for all channels.
// Channels are created lazily on first access and live for the
// process lifetime.
type Store struct {
	limit int

	mu       sync.Mutex
	channels map[string]*channel
}

// New creates a store bounded to limit turns per channel. Human and
// assistant turns count against the same bound.
func New(limit int) (*Store, error) {
	if limit < 1 {
		return nil, fmt.Errorf("context limit must be at least 1, got %d", limit)
	}
	return &Store{
		limit:    limit,
		channels: make(map[string]*channel),
	}, nil
}

// get returns the channel state for id, creating it if needed.
func (s *Store) get(id string) *channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		ch = &channel{}
		s.channels[id] = ch
	}
	return ch
}

// Append stores one turn in the channel's context, evicting the
// oldest turns first once the bound is exceeded.
func (s *Store) Append(channelID string, t Turn) {
	ch := s.get(channelID)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.appendLocked(t)
	ch.trimLocked(s.limit)
}

// AppendExchange stores a human turn and the assistant's reply as a
// single atomic update, in that order. A concurrent Snapshot sees
// either both turns or neither.
func (s *Store) AppendExchange(channelID string, human, assistant Turn) {
	ch := s.get(channelID)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.appendLocked(human)
	ch.appendLocked(assistant)
	ch.trimLocked(s.limit)
}

func (c *channel) appendLocked(t Turn) {
	c.seq++
	t.Seq = c.seq
	if t.Time.IsZero() {
		t.Time = time.Now()
	}
	c.turns = append(c.turns, t)
}

// trimLocked evicts from the front until the bound holds.
func (c *channel) trimLocked(limit int) {
	if excess := len(c.turns) - limit; excess > 0 {
		c.turns = append(c.turns[:0:0], c.turns[excess:]...)
	}
}

// Snapshot returns an ordered copy of the channel's turns, oldest
// first. The copy never observes a partially applied append.
func (s *Store) Snapshot(channelID string) []Turn {
	ch := s.get(channelID)
	ch.mu.Lock()
	defer ch.mu.Unlock()

	turns := make([]Turn, len(ch.turns))
	copy(turns, ch.turns)
	return turns
}

// SetModel updates the channel's active model override. An empty
// model clears the override.
func (s *Store) SetModel(channelID, model string) {
	ch := s.get(channelID)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.model = model
}

// ActiveModel returns the channel's model override, or "" when the
// process default applies.
func (s *Store) ActiveModel(channelID string) string {
	ch := s.get(channelID)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.model
}

// Len returns the number of turns currently stored for the channel.
func (s *Store) Len(channelID string) int {
	ch := s.get(channelID)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.turns)
}
