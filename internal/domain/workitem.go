package domain

import "time"

// WorkKind discriminates queued work. Dispatch switches exhaustively on it,
// so adding a kind is a compile-visible extension point rather than a
// stringly-typed branch buried in the queue.
type WorkKind string

const (
	// KindSendRecipientNotification delivers a daily job digest to one recruiter.
	KindSendRecipientNotification WorkKind = "send_recipient_notification"
)

func (k WorkKind) IsValid() bool {
	switch k {
	case KindSendRecipientNotification:
		return true
	}
	return false
}

// Priority controls ready-pool ordering. High is selected first;
// ties within a priority are broken FIFO by creation time.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// NotificationPayload is the data a send-recipient-notification item carries.
type NotificationPayload struct {
	RecipientID   string
	RecipientName string
	Address       string
	JobIDs        []string
	JobCount      int
}

// WorkItem is a unit of queued work. It is owned exclusively by the queue
// after Enqueue; callers never mutate it directly.
type WorkItem struct {
	ID       string
	Kind     WorkKind
	Payload  NotificationPayload
	Priority Priority

	Attempts    int
	MaxAttempts int

	CreatedAt           time.Time
	ScheduledAt         *time.Time // "not before"; nil means ready immediately
	ProcessingStartedAt *time.Time // cleared when a failed item is rescheduled
	CompletedAt         *time.Time
	FailedAt            *time.Time
	LastError           *string
}

// Terminal reports whether the item will never be dispatched again.
func (w *WorkItem) Terminal() bool {
	return w.CompletedAt != nil || w.FailedAt != nil
}

// Ready reports whether the item may be dispatched at instant now:
// non-terminal, not mid-dispatch, attempts remaining, and any
// "not before" time already passed.
func (w *WorkItem) Ready(now time.Time) bool {
	if w.Terminal() || w.ProcessingStartedAt != nil {
		return false
	}
	if w.Attempts >= w.MaxAttempts {
		return false
	}
	return w.ScheduledAt == nil || !w.ScheduledAt.After(now)
}

const (
	// DefaultMaxAttempts caps dispatch attempts per work item.
	DefaultMaxAttempts = 5

	// itemBackoffBase and itemBackoffCap bound the per-item retry delay.
	itemBackoffBase = time.Second
	itemBackoffCap  = 5 * time.Minute
)

// ItemBackoff returns the reschedule delay after the given attempt number
// (1-based): 1s, 2s, 4s, ... doubling, capped at 5 minutes.
func ItemBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := itemBackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= itemBackoffCap {
			return itemBackoffCap
		}
	}
	if d > itemBackoffCap {
		return itemBackoffCap
	}
	return d
}
