// Package campaign validates campaign definitions and enforces the
// campaign lifecycle state machine.
package campaign

import (
	"fmt"
	"time"

	"comply/internal/model"
)

// Result is the outcome of validating one campaign definition.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validator checks campaign definitions against the type catalog.
type Validator struct {
	types map[string]Type
	now   func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// NewValidator returns a validator over the built-in campaign types.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{types: builtinTypes(), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// TypeByName looks up a campaign type in the catalog.
func (v *Validator) TypeByName(name string) (Type, bool) {
	t, ok := v.types[name]
	return t, ok
}

// Validate checks a campaign definition. An unknown type is fatal and
// short-circuits; all other violations accumulate.
func (v *Validator) Validate(c model.Campaign) Result {
	ct, ok := v.types[c.Type]
	if !ok {
		return Result{IsValid: false, Errors: []string{"Invalid campaign type"}}
	}

	var errs, warns []string

	if c.Schedule != nil {
		errs = append(errs, v.validateSchedule(c.Schedule)...)
	}
	if len(c.Audience) == 0 {
		errs = append(errs, "Campaign must have at least one recipient")
	}

	switch c.Type {
	case TypeTransactional:
		if c.BusinessID == "" {
			errs = append(errs, "Transactional campaigns require a business ID")
		}
	case TypePromotional:
		if !c.OptInVerified {
			warns = append(warns, "Consider verifying opt-in status for promotional messages")
		}
	case TypeSession:
		if len(c.Messages) > ct.MaxMessages {
			errs = append(errs, fmt.Sprintf("Session campaigns cannot exceed %d messages", ct.MaxMessages))
		}
	}

	return Result{IsValid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func (v *Validator) validateSchedule(s *model.Schedule) []string {
	var errs []string
	now := v.now()

	if !s.StartDate.IsZero() && s.StartDate.Before(now) {
		errs = append(errs, "Start date cannot be in the past")
	}
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		errs = append(errs, "End date must be after start date")
	}
	if s.Recurring {
		if s.Frequency == "" {
			errs = append(errs, "Recurring campaigns must specify frequency")
		}
		if s.EndDate == nil {
			errs = append(errs, "Recurring campaigns must have an end date")
		}
	}
	return errs
}
