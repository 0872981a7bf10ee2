// Package session enforces the provider's conversational window: a
// 24-hour, 60-message, 10-consecutive quota per recipient, reset by
// inbound replies.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"comply/internal/model"
)

// Config holds the window limits. Defaults mirror the provider contract.
type Config struct {
	Duration         time.Duration
	MaxMessages      int
	MaxConsecutive   int
	ResetOnUserReply bool
}

// DefaultConfig returns the provider limits: 24h window, 60 messages,
// 10 consecutive, counters reset on user reply.
func DefaultConfig() Config {
	return Config{
		Duration:         24 * time.Hour,
		MaxMessages:      60,
		MaxConsecutive:   10,
		ResetOnUserReply: true,
	}
}

// Store persists session records keyed by recipient. Implementations do not
// need to serialize access; the Tracker guarantees at-most-one concurrent
// mutation per key.
type Store interface {
	Get(key string) (model.Session, bool, error)
	Put(key string, s model.Session) error
	Delete(key string) error
}

// Validation is the outcome of checking whether a recipient may be
// messaged right now.
type Validation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Stats is a snapshot of one session's usage.
type Stats struct {
	Duration             time.Duration `json:"duration"`
	MessageCount         int           `json:"message_count"`
	ConsecutiveMessages  int           `json:"consecutive_messages"`
	UserReplies          int           `json:"user_replies"`
	RemainingMessages    int           `json:"remaining_messages"`
	RemainingConsecutive int           `json:"remaining_consecutive"`
}

// Tracker owns all session records. Reads and writes for the same recipient
// key are serialized; distinct keys proceed independently.
type Tracker struct {
	cfg   Config
	store Store
	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	locks map[string]*keyLock

	dailyMu sync.Mutex
	daily   map[string]int // yyyy-mm-dd -> outbound count
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithConfig overrides the default window limits.
func WithConfig(cfg Config) Option {
	return func(t *Tracker) { t.cfg = cfg }
}

// NewTracker returns a tracker over the given store.
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:   DefaultConfig(),
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
		locks: make(map[string]*keyLock),
		daily: make(map[string]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// keyLock serializes operations for one recipient key. refs counts holders
// and waiters so the entry can be dropped once the last one releases,
// keeping the map bounded by concurrent activity rather than by every
// recipient ever contacted.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (t *Tracker) lock(key string) *keyLock {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()
	l.mu.Lock()
	return l
}

func (t *Tracker) unlock(key string, l *keyLock) {
	l.mu.Unlock()
	t.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
	t.mu.Unlock()
}

// StartSession creates a fresh session for the recipient, replacing any
// prior record. Callers needing history must snapshot first.
func (t *Tracker) StartSession(key string) (model.Session, error) {
	l := t.lock(key)
	defer t.unlock(key, l)

	now := t.now()
	s := model.Session{
		ID:           t.newID(),
		RecipientKey: key,
		StartTime:    now,
		LastActivity: now,
		Status:       model.SessionActive,
	}
	if err := t.store.Put(key, s); err != nil {
		return model.Session{}, fmt.Errorf("store session: %w", err)
	}
	return s, nil
}

// Validate reports whether the recipient may receive another outbound
// message. Expiry and exhaustion are evaluated lazily against the clock;
// the stored record is not mutated.
func (t *Tracker) Validate(key string) (Validation, error) {
	l := t.lock(key)
	defer t.unlock(key, l)
	return t.validateLocked(key)
}

func (t *Tracker) validateLocked(key string) (Validation, error) {
	s, ok, err := t.store.Get(key)
	if err != nil {
		return Validation{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return Validation{Valid: false, Reason: "No active session"}, nil
	}
	if t.now().Sub(s.StartTime) > t.cfg.Duration {
		return Validation{Valid: false, Reason: "Session expired"}, nil
	}
	if s.MessageCount >= t.cfg.MaxMessages {
		return Validation{Valid: false, Reason: "Message limit reached"}, nil
	}
	if s.ConsecutiveMessages >= t.cfg.MaxConsecutive {
		return Validation{Valid: false, Reason: "Consecutive message limit reached"}, nil
	}
	return Validation{Valid: true}, nil
}

// RecordOutbound increments both counters and stamps activity. Returns false
// when the recipient has no session; it never auto-creates one.
func (t *Tracker) RecordOutbound(key string) (bool, error) {
	l := t.lock(key)
	defer t.unlock(key, l)

	s, ok, err := t.store.Get(key)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return false, nil
	}
	s.MessageCount++
	s.ConsecutiveMessages++
	s.LastActivity = t.now()
	if err := t.store.Put(key, s); err != nil {
		return false, fmt.Errorf("store session: %w", err)
	}
	t.bumpDaily()
	return true, nil
}

// RecordInboundReply registers user engagement: the consecutive counter
// drops to zero, and with ResetOnUserReply the message counter restarts too.
// The 24-hour window stays anchored at StartTime; a reply never extends it.
func (t *Tracker) RecordInboundReply(key string) (bool, error) {
	l := t.lock(key)
	defer t.unlock(key, l)

	s, ok, err := t.store.Get(key)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return false, nil
	}
	s.UserReplies++
	s.ConsecutiveMessages = 0
	if t.cfg.ResetOnUserReply {
		s.MessageCount = 0
	}
	s.LastActivity = t.now()
	if err := t.store.Put(key, s); err != nil {
		return false, fmt.Errorf("store session: %w", err)
	}
	return true, nil
}

// Stats returns a usage snapshot, or nil when the recipient has no session.
func (t *Tracker) Stats(key string) (*Stats, error) {
	l := t.lock(key)
	defer t.unlock(key, l)

	s, ok, err := t.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &Stats{
		Duration:             t.now().Sub(s.StartTime),
		MessageCount:         s.MessageCount,
		ConsecutiveMessages:  s.ConsecutiveMessages,
		UserReplies:          s.UserReplies,
		RemainingMessages:    t.cfg.MaxMessages - s.MessageCount,
		RemainingConsecutive: t.cfg.MaxConsecutive - s.ConsecutiveMessages,
	}, nil
}

// EndSession removes the recipient's record. Retention is caller policy.
func (t *Tracker) EndSession(key string) error {
	l := t.lock(key)
	defer t.unlock(key, l)
	return t.store.Delete(key)
}

// DailyCount returns the outbound messages recorded on the given day.
func (t *Tracker) DailyCount(day time.Time) int {
	t.dailyMu.Lock()
	defer t.dailyMu.Unlock()
	return t.daily[day.Format("2006-01-02")]
}

func (t *Tracker) bumpDaily() {
	t.dailyMu.Lock()
	t.daily[t.now().Format("2006-01-02")]++
	t.dailyMu.Unlock()
}
