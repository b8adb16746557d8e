package eligibility

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/talentdesk/recruiter-notify/internal/domain"
	"github.com/talentdesk/recruiter-notify/internal/repository"
)

// SettingsProvider exposes the admin-configurable knobs the evaluator
// consults. Implemented by the settings store; mocked freely in tests.
type SettingsProvider interface {
	FrequencyThreshold(ctx context.Context) (int, error)
	NotificationsEnabled(ctx context.Context) (bool, error)
}

// Decision is the outcome of an eligibility check.
type Decision struct {
	ShouldSend bool
	JobCount   int
	JobIDs     []string

	// Reason explains a negative decision, for logs only.
	Reason string
}

// Evaluator decides whether a batched job notification is due. It is pure
// decision logic: it reads the record store and the job repository and has
// no side effects.
//
// The trigger rule is modulo-based: a notification fires when today's
// active-job count is a positive multiple of the configured frequency
// threshold F. Combined with the emailSent short-circuit this sends at most
// one digest per recipient per day even when several multiples of F are
// crossed later in the day. That is deliberate: the cost of missing a second
// wave is preferred over the risk of spamming recruiters.
type Evaluator struct {
	records  repository.NotificationRecordRepository
	jobs     repository.JobRepository
	settings SettingsProvider
	logger   *zap.Logger
}

func NewEvaluator(
	records repository.NotificationRecordRepository,
	jobs repository.JobRepository,
	settings SettingsProvider,
	logger *zap.Logger,
) *Evaluator {
	return &Evaluator{records: records, jobs: jobs, settings: settings, logger: logger}
}

// ShouldSendForRecipient decides whether the given recruiter is due a
// job-notification digest today.
func (e *Evaluator) ShouldSendForRecipient(ctx context.Context, recipientID string) (Decision, error) {
	return e.evaluate(ctx, &recipientID)
}

// ShouldSendGlobal decides whether today's notification wave is due at all.
// The per-recipient fan-out is driven by this decision plus the active
// recruiter listing.
func (e *Evaluator) ShouldSendGlobal(ctx context.Context) (Decision, error) {
	return e.evaluate(ctx, nil)
}

func (e *Evaluator) evaluate(ctx context.Context, recipientID *string) (Decision, error) {
	enabled, err := e.settings.NotificationsEnabled(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("read notifications-enabled flag: %w", err)
	}
	if !enabled {
		return Decision{Reason: "notifications administratively disabled"}, nil
	}

	rec, err := e.records.FindTodayRecord(ctx, recipientID, domain.EmailTypeJobNotification)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		return Decision{}, fmt.Errorf("find today's record: %w", err)
	}
	if rec != nil && rec.EmailSent {
		return Decision{Reason: "already sent today"}, nil
	}

	jobIDs, err := e.jobs.ListActiveCreatedToday(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("list today's active jobs: %w", err)
	}
	jobCount := len(jobIDs)

	threshold, err := e.settings.FrequencyThreshold(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("read frequency threshold: %w", err)
	}

	// jobCount > 0 guards the 0 mod F == 0 degenerate case: an empty day
	// never triggers, whatever the threshold.
	if jobCount > 0 && jobCount%threshold == 0 {
		return Decision{ShouldSend: true, JobCount: jobCount, JobIDs: jobIDs}, nil
	}

	return Decision{
		JobCount: jobCount,
		JobIDs:   jobIDs,
		Reason:   fmt.Sprintf("job count %d not a positive multiple of threshold %d", jobCount, threshold),
	}, nil
}
