package repository

import (
	"context"

	"github.com/talentdesk/recruiter-notify/internal/domain"
)

// NotificationRecordRepository is the persistence contract for the dedup
// ledger. The pgx implementation is in pg_record_repo.go; tests use a
// hand-written mock (mock_record_repo.go).
//
// recipientID is nil for the global (wave-level) record of a day.
type NotificationRecordRepository interface {
	// FindTodayRecord locates the record for the current local day bucket,
	// or returns domain.ErrRecordNotFound.
	FindTodayRecord(ctx context.Context, recipientID *string, emailType domain.EmailType) (*domain.NotificationRecord, error)

	// CreateOrMerge creates today's record with status=pending, or — when one
	// already exists for (recipient, type, day) — unions jobIDs into it and
	// overwrites jobCount and recipientCount with the new totals.
	CreateOrMerge(ctx context.Context, recipientID *string, emailType domain.EmailType, jobCount int, jobIDs []string, recipientCount int) (*domain.NotificationRecord, error)

	// MarkSent sets emailSent, sentAt and status=sent, and clears any
	// previous failure state.
	MarkSent(ctx context.Context, id string) error

	// MarkFailed sets status=failed, increments retryCount, records the
	// error message and computes nextRetryAt from the record backoff schedule.
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// FindDueRetries returns failed records whose nextRetryAt has passed and
	// whose retryCount is below the cap. Consumed by the retry sweep.
	FindDueRetries(ctx context.Context, retryCap int) ([]*domain.NotificationRecord, error)
}

// JobRepository is the read-only view of the host application's jobs table.
// The pipeline only counts and lists; it never mutates a job.
type JobRepository interface {
	CountActiveCreatedToday(ctx context.Context) (int, error)
	ListActiveCreatedToday(ctx context.Context) ([]string, error)
	FindByIDs(ctx context.Context, ids []string) ([]domain.JobSummary, error)
}

// RecruiterRepository is the read-only view of the host application's
// recruiter accounts and their relationships to jobs.
type RecruiterRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Recruiter, error)
	ListActiveRecruiters(ctx context.Context) ([]domain.Recruiter, error)

	// FindBookmarkersOf returns recruiters with an active saved-job
	// relationship to the given job.
	FindBookmarkersOf(ctx context.Context, jobID string) ([]domain.Recruiter, error)

	// FindCandidateUploadersOf returns recruiters who submitted at least one
	// candidate against the given job.
	FindCandidateUploadersOf(ctx context.Context, jobID string) ([]domain.Recruiter, error)
}
