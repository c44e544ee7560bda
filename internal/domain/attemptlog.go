package domain

import "time"

// AttemptStatus is the outcome of a single delivery attempt.
type AttemptStatus string

const (
	AttemptStarted  AttemptStatus = "STARTED"
	AttemptSent     AttemptStatus = "SENT"
	AttemptFailed   AttemptStatus = "FAILED"
	AttemptRetrying AttemptStatus = "RETRYING"
	AttemptCanceled AttemptStatus = "CANCELED"
)

// AttemptLog is one row per delivery attempt: created when the attempt
// starts, finalized when it ends, never mutated afterwards. Recipient and
// subject are denormalized so a log row is readable without its parent.
type AttemptLog struct {
	LogID             string        `json:"id" dynamodbav:"log_id"`
	NotificationID    string        `json:"notification_id" dynamodbav:"notification_id"`
	AttemptNo         int           `json:"attempt_no" dynamodbav:"attempt_no"`
	Status            AttemptStatus `json:"status" dynamodbav:"status"`
	ToEmail           string        `json:"to_email" dynamodbav:"to_email"`
	SubjectSnapshot   string        `json:"subject_snapshot" dynamodbav:"subject_snapshot"`
	ProviderMessageID string        `json:"provider_message_id,omitempty" dynamodbav:"provider_message_id"`
	ErrorMessage      string        `json:"error_message,omitempty" dynamodbav:"error_message"`
	StartedAt         time.Time     `json:"started_at" dynamodbav:"started_at"`
	FinishedAt        *time.Time    `json:"finished_at,omitempty" dynamodbav:"finished_at"`
}
