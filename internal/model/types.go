package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Session status constants for the conversational window lifecycle.
const (
	SessionActive    = "active"
	SessionExpired   = "expired"
	SessionExhausted = "exhausted"
)

// Campaign status constants for lifecycle tracking.
const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignActive    = "active"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
	CampaignFailed    = "failed"
)

// Message categories used for classification and TTL recommendations.
const (
	CategoryTransactional = "transactional"
	CategoryPromotional   = "promotional"
	CategorySession       = "session"
)

// Session represents one ongoing conversation window with a recipient.
type Session struct {
	ID                  string    `json:"id" db:"id"`
	RecipientKey        string    `json:"recipient_key" db:"recipient_key"`
	StartTime           time.Time `json:"start_time" db:"start_time"`
	LastActivity        time.Time `json:"last_activity" db:"last_activity"`
	MessageCount        int       `json:"message_count" db:"message_count"`
	ConsecutiveMessages int       `json:"consecutive_messages" db:"consecutive_messages"`
	UserReplies         int       `json:"user_replies" db:"user_replies"`
	Status              string    `json:"status" db:"status"`
}

// Template is a reusable message body with {{variable}} placeholders.
type Template struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Type      string    `json:"type" db:"type"`
	Text      string    `json:"text" db:"text"`
	Variables []string  `json:"variables"`
	Category  string    `json:"category" db:"category"`
	Country   string    `json:"country" db:"country"`
	Status    string    `json:"status" db:"status"` // pending|active
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Schedule configures when a campaign runs. Dates are absolute; the
// optional delivery window is minutes from midnight local time.
type Schedule struct {
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	Recurring      bool       `json:"recurring"`
	Frequency      string     `json:"frequency,omitempty"` // daily|weekly|monthly
	DeliveryWindow *Window    `json:"delivery_window,omitempty"`
}

// Window is a daily send window in minutes from midnight.
type Window struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Campaign is a batch messaging unit with its own audience and lifecycle.
// The engine validates campaigns and computes allowed status transitions;
// persistence belongs to the caller's store.
type Campaign struct {
	ID            string             `json:"id" db:"id"`
	Name          string             `json:"name" db:"name"`
	Type          string             `json:"type" db:"type"` // TRANSACTIONAL|PROMOTIONAL|SESSION
	BusinessID    string             `json:"business_id,omitempty" db:"business_id"`
	OptInVerified bool               `json:"opt_in_verified" db:"opt_in_verified"`
	Audience      []string           `json:"audience"`
	Schedule      *Schedule          `json:"schedule,omitempty"`
	Messages      []CandidateMessage `json:"messages,omitempty"`
	Status        string             `json:"status" db:"status"`
	Progress      int                `json:"progress" db:"progress"`
	LastUpdated   time.Time          `json:"last_updated" db:"last_updated"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
}

// CandidateMessage is one message proposed for sending. It exists only for
// the duration of a validation call and is never persisted on its own.
type CandidateMessage struct {
	TypeCode   int               `json:"type"`
	Text       string            `json:"text,omitempty"`
	File       *FileMeta         `json:"file,omitempty"`
	Button     *Button           `json:"button,omitempty"`
	TTL        TTL               `json:"ttl,omitempty"`
	Recipient  string            `json:"recipient"`
	TemplateID string            `json:"template_id,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// FileMeta describes an attached file. DurationSec applies to video only.
type FileMeta struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	MIME        string `json:"mime,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"`
	Thumbnail   bool   `json:"thumbnail,omitempty"`
}

// Button is an inline action button attached to a rich-media message.
type Button struct {
	Caption string `json:"caption"`
	Action  string `json:"action,omitempty"`
}

// TTL is a message lifetime: plain seconds or a duration string with an
// h/m/s suffix ("2h", "30m", "45s"). JSON may carry a number or a string.
type TTL string

// UnmarshalJSON accepts both `3600` and `"2h"`.
func (t *TTL) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = TTL(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = TTL(strconv.FormatInt(n, 10))
	return nil
}

func (t TTL) String() string { return string(t) }
