package domain

import "errors"

// Sentinel errors used throughout the application.
// The HTTP layer translates these to status codes via a single mapError function.
var (
	ErrRecordNotFound    = errors.New("notification record not found")
	ErrDuplicateRecord   = errors.New("notification record already exists for recipient, type and day")
	ErrRecruiterNotFound = errors.New("recruiter not found")
	ErrJobNotFound       = errors.New("job not found")

	ErrThresholdOutOfRange = errors.New("frequency threshold must be between 1 and 50")
	ErrInvalidSendTime     = errors.New("send time must be a valid HH:MM 24-hour string")

	ErrUnknownWorkKind = errors.New("unknown work item kind")
)
