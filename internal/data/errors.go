package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a PDF job does not exist or is not
	// visible to the requesting owner.
	ErrJobNotFound = errors.New("job not found")

	// ErrOutboxMessageNotFound is returned when an outbox message does not exist.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")

	// ErrDuplicateOutboxMessage is returned when an outbox insert collides
	// with the one-notification-per-job-per-outcome constraint.
	ErrDuplicateOutboxMessage = errors.New("outbox message already exists for this job and message type")
)
