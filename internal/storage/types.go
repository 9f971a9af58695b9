package storage

import (
	"time"
)

// Initiator identifies the admin who pre-registered a user.
type Initiator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TimeRecord is the durable accounting state for one user.
//
// AccumulatedSeconds only ever contains closed intervals. The open
// interval between SessionStartedAt and now (or PauseStartedAt while
// paused) is derived at query time, never written back until the session
// is paused or stopped.
type TimeRecord struct {
	UserID             string     `json:"user_id"`
	Name               string     `json:"name"`
	AccumulatedSeconds float64    `json:"accumulated_seconds"`
	SessionStartedAt   *time.Time `json:"session_started_at,omitempty"`
	Active             bool       `json:"active"`
	Paused             bool       `json:"paused"`
	PauseStartedAt     *time.Time `json:"pause_started_at,omitempty"`
	PauseCount         int        `json:"pause_count"`
	NotifiedMilestones []int      `json:"notified_milestones,omitempty"`
	MilestoneCompleted bool       `json:"milestone_completed"`
	ExternalUser       bool       `json:"external_user"`
	PreRegisteredAt    *time.Time `json:"pre_registered_at,omitempty"`
	PreRegisteredBy    *Initiator `json:"pre_registered_by,omitempty"`
}

// PreRegistered reports whether the record is in the pre-registered state.
func (r *TimeRecord) PreRegistered() bool {
	return !r.Active && !r.Paused && r.PreRegisteredAt != nil
}

// HasNotified reports whether the given hour milestone was already notified.
func (r *TimeRecord) HasNotified(hours int) bool {
	for _, h := range r.NotifiedMilestones {
		if h == hours {
			return true
		}
	}
	return false
}

// MarkNotified adds an hour milestone to the notified set. The set only
// ever grows.
func (r *TimeRecord) MarkNotified(hours int) {
	if !r.HasNotified(hours) {
		r.NotifiedMilestones = append(r.NotifiedMilestones, hours)
	}
}
