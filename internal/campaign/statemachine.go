package campaign

import (
	"fmt"
	"time"

	"comply/internal/model"
)

// transitions is the allowed status graph. Completed and failed are
// terminal; scheduled back to draft is a cancel.
var transitions = map[string][]string{
	model.CampaignDraft:     {model.CampaignScheduled, model.CampaignActive},
	model.CampaignScheduled: {model.CampaignActive, model.CampaignDraft},
	model.CampaignActive:    {model.CampaignPaused, model.CampaignCompleted},
	model.CampaignPaused:    {model.CampaignActive, model.CampaignCompleted},
	model.CampaignCompleted: {},
	model.CampaignFailed:    {},
}

// TransitionError reports an attempted status change outside the allowed
// table. The engine rejects rather than silently clamping.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid campaign status transition: %s -> %s", e.From, e.To)
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns a copy of the campaign moved to newStatus with
// LastUpdated stamped, or a *TransitionError when the move is not allowed.
func Transition(c model.Campaign, newStatus string, now time.Time) (model.Campaign, error) {
	if !CanTransition(c.Status, newStatus) {
		return model.Campaign{}, &TransitionError{From: c.Status, To: newStatus}
	}
	c.Status = newStatus
	c.LastUpdated = now
	return c, nil
}
