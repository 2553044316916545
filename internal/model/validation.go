package model

import "time"

// ValidationStatus is the outcome reported for a collective-savings validation.
type ValidationStatus string

const (
	ValidationOK     ValidationStatus = "ok"
	ValidationReview ValidationStatus = "review"
	ValidationError  ValidationStatus = "error"
)

// ValidationRecord is one persisted tanda validation, kept for monitoring.
type ValidationRecord struct {
	ID             string           `json:"id"`
	ValidationID   string           `json:"validation_id"`
	ClientID       string           `json:"client_id,omitempty"`
	Market         string           `json:"market"`
	ClientType     string           `json:"client_type"`
	Members        int              `json:"members"`
	Status         ValidationStatus `json:"status"`
	FallbackUsed   bool             `json:"fallback_used"`
	Warnings       int              `json:"warnings"`
	ScheduleRounds int              `json:"schedule_rounds"`
	RosterUploadID string           `json:"roster_upload_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
