// Package conversation keeps the threading state of email conversations in
// memory so replies carry the right subject and In-Reply-To headers.
package conversation

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mixelka/emailchannel/pkg/models"
)

const (
	DefaultMaxEntries    = 1000
	DefaultMaxAge        = 7 * 24 * time.Hour
	DefaultSweepInterval = time.Hour

	// share of entries dropped when the store overflows
	evictRatio = 0.1
)

// Update is the mutable part of a conversation
type Update struct {
	LastMessageID string
	Subject       string
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMaxEntries sets the capacity cap
func WithMaxEntries(n int) Option {
	return func(s *Store) { s.maxEntries = n }
}

// WithMaxAge sets the retention window for idle conversations
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) { s.maxAge = d }
}

// WithSweepInterval sets how often expired conversations are removed.
// Zero disables the background sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepInterval = d }
}

// Store maps thread identities to conversations. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	items map[string]*models.Conversation

	now           func() time.Time
	maxEntries    int
	maxAge        time.Duration
	sweepInterval time.Duration

	stopCh    chan struct{}
	closeOnce sync.Once
}

// New creates a store and starts its background sweep
func New(opts ...Option) *Store {
	s := &Store{
		items:         make(map[string]*models.Conversation),
		now:           time.Now,
		maxEntries:    DefaultMaxEntries,
		maxAge:        DefaultMaxAge,
		sweepInterval: DefaultSweepInterval,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.sweepInterval > 0 {
		go s.sweepLoop()
	}
	return s
}

// Get returns a copy of the conversation for threadID
func (s *Store) Get(threadID string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.items[threadID]
	if !ok {
		return models.Conversation{}, false
	}
	return *c, true
}

// Set creates or refreshes the conversation for threadID. The creation time
// of an existing conversation is preserved.
func (s *Store) Set(threadID string, u Update) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.items[threadID]; ok {
		c.LastMessageID = u.LastMessageID
		c.Subject = u.Subject
		c.UpdatedAt = now
		return
	}

	s.items[threadID] = &models.Conversation{
		ThreadID:      threadID,
		LastMessageID: u.LastMessageID,
		Subject:       u.Subject,
		Created:       now,
		UpdatedAt:     now,
	}

	if s.maxEntries > 0 && len(s.items) > s.maxEntries {
		s.evictOldestLocked()
	}
}

// Len returns the number of stored conversations
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Sweep removes conversations idle for longer than the retention window and
// returns how many were removed.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.items {
		if c.UpdatedAt.Before(cutoff) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

// Close stops the background sweep
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.stopCh) })
}

func (s *Store) evictOldestLocked() {
	n := int(math.Ceil(float64(len(s.items)) * evictRatio))

	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.items[ids[i]].UpdatedAt.Before(s.items[ids[j]].UpdatedAt)
	})

	for _, id := range ids[:n] {
		delete(s.items, id)
	}
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
