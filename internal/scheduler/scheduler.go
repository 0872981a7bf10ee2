// Package scheduler drives scheduled campaigns through the compliance
// pipeline: due campaigns are activated, each audience member's message is
// validated, and authorized messages are handed to the transport.
package scheduler

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"comply/internal/campaign"
	"comply/internal/model"
	"comply/internal/pipeline"
	"comply/internal/session"
	"comply/internal/status"
	"comply/internal/storage"
	"comply/internal/ttl"
)

// Transport delivers an authorized message. The engine never talks to a
// provider itself; callers plug in their own implementation.
type Transport interface {
	Send(ctx context.Context, msg model.CandidateMessage) error
}

// LogTransport is the default transport: it only logs. Useful for dry runs
// and local development.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, msg model.CandidateMessage) error {
	log.Printf("[transport] send type=%d recipient=%s", msg.TypeCode, msg.Recipient)
	return nil
}

// Scheduler runs the dispatch loop. One campaign advances per cycle to
// avoid bursts, mirroring conservative provider pacing.
type Scheduler struct {
	Store     *storage.Store
	Pipeline  *pipeline.Pipeline
	Sessions  *session.Tracker
	Statuses  *status.Tracker
	Validator *campaign.Validator
	Transport Transport

	limiter   *rate.Limiter
	batchSize int
	now       func() time.Time
	running   bool
	stop      chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithDispatchRate sets sends-per-second pacing.
func WithDispatchRate(perSecond float64) Option {
	return func(s *Scheduler) { s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// WithBatchSize caps recipients processed per campaign per cycle.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) { s.batchSize = n }
}

// New builds a scheduler with conservative defaults: one send per second,
// batches of 25 recipients per cycle.
func New(store *storage.Store, pipe *pipeline.Pipeline, sessions *session.Tracker,
	statuses *status.Tracker, validator *campaign.Validator, transport Transport, opts ...Option) *Scheduler {
	if transport == nil {
		transport = LogTransport{}
	}
	s := &Scheduler{
		Store:     store,
		Pipeline:  pipe,
		Sessions:  sessions,
		Statuses:  statuses,
		Validator: validator,
		Transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
		batchSize: 25,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the scheduler loop in a goroutine. Call Stop to halt it.
func (s *Scheduler) Start(ctx context.Context) {
	if s.running {
		return
	}
	s.running = true
	go s.loop(ctx)
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
}

func (s *Scheduler) loop(ctx context.Context) {
	defer func() { s.running = false }()
	tick := time.NewTicker(30 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := s.RunCycle(ctx); err != nil {
				log.Printf("[scheduler] cycle error: %v", err)
			}
		}
	}
}

// RunCycle performs one scheduling pass: promote due campaigns, then
// advance one active campaign by a batch. Exported so callers (and tests)
// can drive the scheduler without the ticker.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	if err := s.promoteDue(); err != nil {
		return err
	}
	return s.dispatchOne(ctx)
}

// promoteDue moves scheduled campaigns whose start date has arrived into
// the active state, through the state machine so the transition is audited.
func (s *Scheduler) promoteDue() error {
	list, err := s.Store.ListCampaigns(model.CampaignScheduled)
	if err != nil {
		return err
	}
	now := s.now()
	for _, c := range list {
		if c.Schedule != nil && c.Schedule.StartDate.After(now) {
			continue
		}
		moved, err := campaign.Transition(c, model.CampaignActive, now)
		if err != nil {
			log.Printf("[scheduler] campaign %s: %v", c.ID, err)
			continue
		}
		if err := s.Store.UpdateCampaignStatus(moved.ID, moved.Status, moved.LastUpdated); err != nil {
			return err
		}
		log.Printf("[scheduler] campaign %s activated", c.ID)
	}
	return nil
}

// dispatchOne advances the first eligible active campaign by one batch.
func (s *Scheduler) dispatchOne(ctx context.Context) error {
	list, err := s.Store.ListCampaigns(model.CampaignActive)
	if err != nil {
		return err
	}
	now := s.now()
	for _, c := range list {
		if c.Schedule != nil && !inWindow(c.Schedule.DeliveryWindow, now) {
			continue
		}
		if len(c.Messages) == 0 || c.Progress >= len(c.Audience) {
			return s.complete(c)
		}
		return s.dispatchBatch(ctx, c)
	}
	return nil
}

func (s *Scheduler) dispatchBatch(ctx context.Context, c model.Campaign) error {
	end := c.Progress + s.batchSize
	if end > len(c.Audience) {
		end = len(c.Audience)
	}
	isSession := c.Type == campaign.TypeSession

	for i := c.Progress; i < end; i++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		recipient := c.Audience[i]
		for _, msg := range c.Messages {
			msg.Recipient = recipient
			if msg.TTL == "" {
				if ct, ok := s.Validator.TypeByName(c.Type); ok && ct.DefaultTTL > 0 {
					msg.TTL = model.TTL(strconv.FormatInt(ct.DefaultTTL, 10))
				}
			}
			if err := s.sendOne(ctx, c, msg, isSession); err != nil {
				return err
			}
		}
	}
	if err := s.Store.UpdateCampaignProgress(c.ID, end, s.now()); err != nil {
		return err
	}
	if end >= len(c.Audience) {
		c.Progress = end
		return s.complete(c)
	}
	return nil
}

func (s *Scheduler) sendOne(ctx context.Context, c model.Campaign, msg model.CandidateMessage, isSession bool) error {
	pctx := pipeline.Context{}
	if isSession {
		v, err := s.ensureSession(msg.Recipient)
		if err != nil {
			return err
		}
		pctx.Session = &v
	}

	res := s.Pipeline.Validate(msg, pctx)
	if err := s.Store.LogDecision(msg.Recipient, msg.TypeCode, c.ID, res.IsValid, res.Errors); err != nil {
		return err
	}
	if !res.IsValid {
		log.Printf("[scheduler] campaign %s recipient %s rejected: %v", c.ID, msg.Recipient, res.Errors)
		return nil
	}

	if err := s.Transport.Send(ctx, msg); err != nil {
		log.Printf("[scheduler] transport failed campaign=%s recipient=%s err=%v", c.ID, msg.Recipient, err)
		return nil
	}
	if isSession {
		if _, err := s.Sessions.RecordOutbound(msg.Recipient); err != nil {
			return err
		}
	}
	id := uuid.NewString()
	var expiry time.Time
	if msg.TTL != "" {
		expiry = ttl.ExpiryTime(msg.TTL, s.now())
	}
	s.Statuses.Track(id, expiry)
	return nil
}

// ensureSession validates the recipient's window, starting a fresh session
// on first contact.
func (s *Scheduler) ensureSession(recipient string) (session.Validation, error) {
	v, err := s.Sessions.Validate(recipient)
	if err != nil {
		return session.Validation{}, err
	}
	if !v.Valid && v.Reason == "No active session" {
		if _, err := s.Sessions.StartSession(recipient); err != nil {
			return session.Validation{}, err
		}
		return s.Sessions.Validate(recipient)
	}
	return v, nil
}

func (s *Scheduler) complete(c model.Campaign) error {
	moved, err := campaign.Transition(c, model.CampaignCompleted, s.now())
	if err != nil {
		return err
	}
	if err := s.Store.UpdateCampaignStatus(moved.ID, moved.Status, moved.LastUpdated); err != nil {
		return err
	}
	log.Printf("[scheduler] campaign %s completed", c.ID)
	return nil
}

// inWindow reports whether t falls inside the daily delivery window. A nil
// window means always.
func inWindow(w *model.Window, t time.Time) bool {
	if w == nil {
		return true
	}
	m := t.Hour()*60 + t.Minute()
	return m >= w.StartMinute && m <= w.EndMinute
}
