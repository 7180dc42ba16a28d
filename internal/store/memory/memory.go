package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vovakirdan/chatdispatch/internal/store"
)

type channelLog struct {
	messages  []store.Message
	lastPrune time.Time
}

// Store is an in-process HistoryStore. Everything is lost on restart.
type Store struct {
	mu     sync.Mutex
	policy store.Policy
	logs   map[string]*channelLog
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp a channel's first prune time.
// It should match the clock passed to Prune.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty store bounded by the given policy.
func New(policy store.Policy, opts ...Option) *Store {
	s := &Store{
		policy: policy,
		logs:   make(map[string]*channelLog),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds msg to the channel and trims it to the class cap.
func (s *Store) Append(_ context.Context, ch store.Channel, msg store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[ch.Key()]
	if !ok {
		log = &channelLog{lastPrune: s.now()}
		s.logs[ch.Key()] = log
	}

	msg.Channel = ch
	log.messages = append(log.messages, msg)
	if limit := s.policy.CapFor(ch.Kind); limit > 0 && len(log.messages) > limit {
		log.messages = log.messages[len(log.messages)-limit:]
	}
	return nil
}

// Recent returns a copy of the newest messages, oldest first.
func (s *Store) Recent(_ context.Context, ch store.Channel, limit int) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = store.ClampLimit(limit)
	log, ok := s.logs[ch.Key()]
	if !ok {
		return []store.Message{}, nil
	}

	start := max(len(log.messages)-limit, 0)
	return slices.Clone(log.messages[start:]), nil
}

// Prune drops messages older than the retention window and trims to
// MaxMessages, for every channel not pruned within the window.
func (s *Store) Prune(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.policy.Retention)
	removed := 0
	for _, log := range s.logs {
		if now.Sub(log.lastPrune) <= s.policy.Retention {
			continue
		}

		before := len(log.messages)
		kept := make([]store.Message, 0, before)
		for _, msg := range log.messages {
			if !msg.CreatedAt.Before(cutoff) {
				kept = append(kept, msg)
			}
		}
		if s.policy.MaxMessages > 0 && len(kept) > s.policy.MaxMessages {
			kept = kept[len(kept)-s.policy.MaxMessages:]
		}
		log.messages = slices.Clip(kept)
		log.lastPrune = now
		removed += before - len(kept)
	}
	return removed, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
