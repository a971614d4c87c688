package models

import (
	"time"
)

// JobKindSendEmail is the only job kind the durable scheduler runs
const JobKindSendEmail = "send email"

// Job statuses
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// ScheduledJob is a durable, time-delayed job. Rows live in Postgres so they
// survive process restarts; the scheduler worker picks them up at/after RunAt.
type ScheduledJob struct {
	ID         uint   `gorm:"primarykey" json:"id"`
	SequenceID uint   `gorm:"not null;index" json:"sequenceId"`
	Kind       string `gorm:"not null" json:"kind"`
	Step       int    `gorm:"not null" json:"step"`

	Payload  EmailPayload `gorm:"type:jsonb;serializer:json" json:"payload"`
	DedupKey string       `gorm:"not null;uniqueIndex" json:"dedupKey"`

	// Scheduling
	RunAt      time.Time  `gorm:"not null;index:idx_jobs_due,priority:2" json:"runAt"`
	Status     string     `gorm:"not null;default:'queued';index:idx_jobs_due,priority:1" json:"status"` // queued, running, done, failed
	Attempts   int        `gorm:"default:0" json:"attempts"`
	LockedBy   *string    `json:"lockedBy,omitempty"`
	LockedAt   *time.Time `json:"lockedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	// Delivery outcome
	MessageID string  `json:"messageId,omitempty"`
	LastError *string `gorm:"type:text" json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EmailPayload is the data carried by a send email job
type EmailPayload struct {
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	SequenceID uint   `json:"sequenceId"`
}

// IsFinished reports whether the job reached a terminal status
func (j *ScheduledJob) IsFinished() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}
