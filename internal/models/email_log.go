package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusSent   = "sent"
	EmailLogStatusFailed = "failed"
	EmailLogStatusQueued = "queued"
)

// EmailLog records one cancellation-link delivery attempt.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	RegistrationID *uuid.UUID `json:"registration_id,omitempty"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	Endpoint       string     `json:"endpoint,omitempty"`
	Sender         string     `json:"sender,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Attempt        int        `json:"attempt"`
	CreatedAt      time.Time  `json:"created_at"`
}
