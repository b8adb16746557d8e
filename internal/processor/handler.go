package processor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/talentdesk/recruiter-notify/internal/delivery"
	"github.com/talentdesk/recruiter-notify/internal/domain"
	"github.com/talentdesk/recruiter-notify/internal/ratelimiter"
	"github.com/talentdesk/recruiter-notify/internal/repository"
)

// WorkItemHandler executes queued work items. It is the only place that
// switches on WorkKind; every kind must be handled here or dispatch fails
// with ErrUnknownWorkKind.
type WorkItemHandler struct {
	records repository.NotificationRecordRepository
	jobs    repository.JobRepository
	sender  delivery.Sender
	compose *delivery.Composer
	limiter *ratelimiter.SendLimiter
	logger  *zap.Logger
}

func NewWorkItemHandler(
	records repository.NotificationRecordRepository,
	jobs repository.JobRepository,
	sender delivery.Sender,
	compose *delivery.Composer,
	limiter *ratelimiter.SendLimiter,
	logger *zap.Logger,
) *WorkItemHandler {
	return &WorkItemHandler{
		records: records,
		jobs:    jobs,
		sender:  sender,
		compose: compose,
		limiter: limiter,
		logger:  logger,
	}
}

func (h *WorkItemHandler) Handle(ctx context.Context, item *domain.WorkItem) error {
	switch item.Kind {
	case domain.KindSendRecipientNotification:
		return h.sendDigest(ctx, item)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownWorkKind, item.Kind)
	}
}

// sendDigest delivers the daily digest to one recruiter and reconciles the
// outcome into the persistent record, which is the durable dedup authority.
func (h *WorkItemHandler) sendDigest(ctx context.Context, item *domain.WorkItem) error {
	p := item.Payload

	summaries, err := h.jobs.FindByIDs(ctx, p.JobIDs)
	if err != nil {
		return fmt.Errorf("load job summaries: %w", err)
	}

	subject, htmlBody, textBody, err := h.compose.ComposeDigest(p.RecipientName, summaries)
	if err != nil {
		return fmt.Errorf("compose digest: %w", err)
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	sendErr := h.sender.Send(ctx, p.Address, subject, htmlBody, textBody)
	h.reconcileRecord(ctx, p.RecipientID, sendErr)

	if sendErr != nil {
		return fmt.Errorf("send digest to %s: %w", p.Address, sendErr)
	}

	h.logger.Info("digest sent",
		zap.String("recipient_id", p.RecipientID),
		zap.Int("job_count", p.JobCount))
	return nil
}

// reconcileRecord updates today's ledger row after a send attempt. A missing
// record is logged, not fatal: the send already happened and the next
// eligibility pass will rebuild the ledger.
func (h *WorkItemHandler) reconcileRecord(ctx context.Context, recipientID string, sendErr error) {
	rec, err := h.records.FindTodayRecord(ctx, &recipientID, domain.EmailTypeJobNotification)
	if err != nil {
		h.logger.Warn("no ledger record to reconcile",
			zap.String("recipient_id", recipientID), zap.Error(err))
		return
	}

	if sendErr == nil {
		if err := h.records.MarkSent(ctx, rec.ID); err != nil {
			h.logger.Error("failed to mark record sent",
				zap.String("record_id", rec.ID), zap.Error(err))
		}
		return
	}
	if err := h.records.MarkFailed(ctx, rec.ID, sendErr.Error()); err != nil {
		h.logger.Error("failed to mark record failed",
			zap.String("record_id", rec.ID), zap.Error(err))
	}
}
