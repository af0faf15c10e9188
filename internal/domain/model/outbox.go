package model

import "time"

// MessageType identifies what kind of notification an outbox message carries.
type MessageType string

// OutboxStatus represents the delivery state of an outbox message.
type OutboxStatus string

const (
	// MessageTypePdfCompleted notifies an owner that their PDF is ready.
	MessageTypePdfCompleted MessageType = "pdf_completed"
	// MessageTypePdfFailed notifies an owner that their PDF job failed.
	MessageTypePdfFailed MessageType = "pdf_failed"

	// OutboxStatusPending indicates the message is awaiting delivery.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusCompleted indicates the message was delivered.
	OutboxStatusCompleted OutboxStatus = "completed"
	// OutboxStatusPermanentlyFailed indicates delivery was abandoned after
	// exhausting all retry attempts.
	OutboxStatusPermanentlyFailed OutboxStatus = "permanently_failed"
)

// Valid returns true if the OutboxStatus is valid.
func (s OutboxStatus) Valid() bool {
	return s == OutboxStatusPending || s == OutboxStatusCompleted || s == OutboxStatusPermanentlyFailed
}

// OutboxMessage represents a durable notification awaiting delivery. Rows are
// never deleted; terminal rows remain as an audit trail.
type OutboxMessage struct {
	ID                 string       `json:"id"                            db:"id"`
	MessageType        MessageType  `json:"message_type"                  db:"message_type"`
	JobID              string       `json:"job_id"                        db:"job_id"`
	OwnerID            string       `json:"owner_id"                      db:"owner_id"`
	EmailTo            string       `json:"email_to"                      db:"email_to"`
	Subject            string       `json:"subject"                       db:"subject"`
	Body               string       `json:"body"                          db:"body"`
	AttachmentPath     *string      `json:"attachment_path,omitempty"     db:"attachment_path"`
	AttachmentFilename *string      `json:"attachment_filename,omitempty" db:"attachment_filename"`
	Status             OutboxStatus `json:"status"                        db:"status"`
	AttemptCount       int          `json:"attempt_count"                 db:"attempt_count"`
	MaxRetryAttempts   int          `json:"max_retry_attempts"            db:"max_retry_attempts"`
	ErrorMessage       *string      `json:"error_message,omitempty"       db:"error_message"`
	CreatedAt          time.Time    `json:"created_at"                    db:"created_at"`
	LastAttemptedAt    *time.Time   `json:"last_attempted_at,omitempty"   db:"last_attempted_at"`
	NextRetryAt        *time.Time   `json:"next_retry_at,omitempty"       db:"next_retry_at"`
	ProcessedAt        *time.Time   `json:"processed_at,omitempty"        db:"processed_at"`
}

// OutboxStats represents counts of outbox messages in each state.
type OutboxStats struct {
	Pending           int `json:"pending"`
	Completed         int `json:"completed"`
	PermanentlyFailed int `json:"permanently_failed"`
}
