// Package status tracks per-message delivery state with history and
// change notification. TTL expiry is applied lazily at query time.
package status

import (
	"sync"
	"time"
)

// Code is a provider delivery status code. Values are part of the provider
// callback contract.
type Code int

const (
	Pending   Code = -1
	Delivered Code = 0
	Seen      Code = 1
	Expired   Code = 2
	Blocked   Code = 8
)

// Label returns the human-readable status name.
func (c Code) Label() string {
	switch c {
	case Pending:
		return "Pending"
	case Delivered:
		return "Delivered"
	case Seen:
		return "Seen"
	case Expired:
		return "Expired"
	case Blocked:
		return "Blocked"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further status changes are expected.
func (c Code) Terminal() bool {
	return c == Seen || c == Expired || c == Blocked
}

// Change is one entry in a message's status history.
type Change struct {
	Status Code      `json:"status"`
	At     time.Time `json:"at"`
}

// Record is the tracked state of one message.
type Record struct {
	MessageID string    `json:"message_id"`
	Status    Code      `json:"status"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	History   []Change  `json:"history"`
}

// Handler receives a copy of the record after each status change.
type Handler func(Record)

// Tracker holds delivery state for in-flight messages.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*Record
	subs    map[string]map[int]Handler
	nextSub int
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		records: make(map[string]*Record),
		subs:    make(map[string]map[int]Handler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track starts following a message as Pending. A zero expiry means the
// message never expires on its own.
func (t *Tracker) Track(messageID string, expiresAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.records[messageID] = &Record{
		MessageID: messageID,
		Status:    Pending,
		ExpiresAt: expiresAt,
		History:   []Change{{Status: Pending, At: now}},
	}
}

// Update moves a message to a new status and notifies subscribers. Returns
// false for untracked ids.
func (t *Tracker) Update(messageID string, status Code) bool {
	t.mu.Lock()
	rec, ok := t.records[messageID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	t.applyLocked(rec, status)
	snapshot := *rec
	handlers := t.handlersLocked(messageID)
	t.mu.Unlock()

	for _, h := range handlers {
		h(snapshot)
	}
	return true
}

// Get returns the current record. A Pending message past its expiry reads
// (and is recorded) as Expired; subscribers are notified of that change.
func (t *Tracker) Get(messageID string) (Record, bool) {
	t.mu.Lock()
	rec, ok := t.records[messageID]
	if !ok {
		t.mu.Unlock()
		return Record{}, false
	}
	var handlers []Handler
	if rec.Status == Pending && !rec.ExpiresAt.IsZero() && t.now().After(rec.ExpiresAt) {
		t.applyLocked(rec, Expired)
		handlers = t.handlersLocked(messageID)
	}
	snapshot := *rec
	snapshot.History = append([]Change(nil), rec.History...)
	t.mu.Unlock()

	for _, h := range handlers {
		h(snapshot)
	}
	return snapshot, true
}

// Subscribe registers a handler for one message's status changes and
// returns the function that removes it.
func (t *Tracker) Subscribe(messageID string, h Handler) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	if t.subs[messageID] == nil {
		t.subs[messageID] = make(map[int]Handler)
	}
	t.subs[messageID][id] = h
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs[messageID], id)
	}
}

// Forget drops a message's record and subscriptions.
func (t *Tracker) Forget(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, messageID)
	delete(t.subs, messageID)
}

func (t *Tracker) applyLocked(rec *Record, status Code) {
	rec.Status = status
	rec.History = append(rec.History, Change{Status: status, At: t.now()})
}

func (t *Tracker) handlersLocked(messageID string) []Handler {
	m := t.subs[messageID]
	if len(m) == 0 {
		return nil
	}
	out := make([]Handler, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	return out
}
