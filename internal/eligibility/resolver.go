package eligibility

import (
	"context"
	"fmt"

	"github.com/talentdesk/recruiter-notify/internal/domain"
	"github.com/talentdesk/recruiter-notify/internal/repository"
)

// Resolver determines which recruiters should hear about a job-content
// change: those with an active bookmark on the job plus those who uploaded
// a candidate against it, deduplicated by recruiter identity.
//
// This surface is independent of the batch-threshold evaluator. Job-update
// alerts are sent synchronously by the caller and never flow through the
// work-item queue, so no retry or backoff logic applies here.
type Resolver struct {
	recruiters repository.RecruiterRepository
}

func NewResolver(recruiters repository.RecruiterRepository) *Resolver {
	return &Resolver{recruiters: recruiters}
}

// EligibleRecipients returns the deduplicated union of bookmarkers and
// candidate uploaders for the given job, in first-seen order.
func (r *Resolver) EligibleRecipients(ctx context.Context, jobID string) ([]domain.Recruiter, error) {
	bookmarkers, err := r.recruiters.FindBookmarkersOf(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("find bookmarkers of job %s: %w", jobID, err)
	}
	uploaders, err := r.recruiters.FindCandidateUploadersOf(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("find candidate uploaders of job %s: %w", jobID, err)
	}

	seen := make(map[string]struct{}, len(bookmarkers)+len(uploaders))
	eligible := make([]domain.Recruiter, 0, len(bookmarkers)+len(uploaders))
	for _, rec := range append(bookmarkers, uploaders...) {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		eligible = append(eligible, rec)
	}
	return eligible, nil
}
