package domain

import "time"

// EmailType distinguishes the notification ledgers. Each type has its own
// at-most-once-per-day key space.
type EmailType string

const (
	// EmailTypeJobNotification is the batched "N new jobs today" digest.
	EmailTypeJobNotification EmailType = "job_notification"
	// EmailTypeJobUpdate is the synchronous job-content-changed alert.
	EmailTypeJobUpdate EmailType = "job_update"
)

// RecordStatus tracks the delivery state of a NotificationRecord.
type RecordStatus string

const (
	RecordPending RecordStatus = "pending"
	RecordSent    RecordStatus = "sent"
	RecordFailed  RecordStatus = "failed"
)

// NotificationRecord is the persistent dedup and audit ledger entry.
// At most one exists per (recipient-or-global, email type, day); the backing
// store enforces this with a uniqueness constraint. It is the single source
// of truth for "was this recruiter notified today" and survives restarts,
// unlike queued work items.
type NotificationRecord struct {
	ID          string
	RecipientID *string // nil = global record for the day's wave
	EmailType   EmailType
	SentDate    time.Time // truncated to the local day bucket

	JobCount       int
	JobIDs         []string
	RecipientCount int

	EmailSent    bool
	Status       RecordStatus
	SentAt       *time.Time
	RetryCount   int
	NextRetryAt  *time.Time
	ErrorMessage *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecordBackoff is the record-level retry schedule, indexed by
// min(retryCount-1, last). Distinct from the faster per-item backoff:
// records anchor retries across the slower 5-minute sweep.
var RecordBackoff = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
	120 * time.Minute,
}

// NextRetryDelay returns the sweep delay after the given retry count
// (1-based), clamped to the last schedule entry.
func NextRetryDelay(retryCount int) time.Duration {
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(RecordBackoff) {
		idx = len(RecordBackoff) - 1
	}
	return RecordBackoff[idx]
}

// DayBucket returns the local-midnight bounds [start, end) containing t.
func DayBucket(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// MergeJobIDs unions two ID slices, preserving first-seen order and
// dropping duplicates. Used when a second enqueue for the same day folds
// into an existing record.
func MergeJobIDs(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, id := range existing {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	for _, id := range incoming {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	return merged
}

// Recruiter is the minimal recipient identity the pipeline needs.
// The full profile lives in the host application; this core only
// addresses and names.
type Recruiter struct {
	ID      string
	Name    string
	Address string
}

// JobSummary is the read-only slice of a job used to render digests.
type JobSummary struct {
	ID         string
	Title      string
	Location   string
	Commission string
	Salary     string
}
