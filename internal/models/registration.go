package models

import (
	"time"

	"github.com/google/uuid"
)

// Registration status values derived from CancelledAt.
const (
	StatusActive   = "ACTIVE"
	StatusCanceled = "CANCELED"
)

// Registration is a single attendee registration for the event.
type Registration struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Affiliation string     `json:"affiliation"`
	Position    string     `json:"position"`
	Note        string     `json:"note"`
	CancelToken string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
}

// Cancelled reports whether the registration has been cancelled.
func (r *Registration) Cancelled() bool {
	return r.CancelledAt != nil
}

// Status returns ACTIVE or CANCELED.
func (r *Registration) Status() string {
	if r.Cancelled() {
		return StatusCanceled
	}
	return StatusActive
}
