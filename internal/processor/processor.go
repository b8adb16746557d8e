// Package processor orchestrates the notification pipeline: the business
// tick that evaluates eligibility and fans out queue items, and the retry
// sweep that re-attempts failed ledger records.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/talentdesk/recruiter-notify/internal/delivery"
	"github.com/talentdesk/recruiter-notify/internal/domain"
	"github.com/talentdesk/recruiter-notify/internal/eligibility"
	"github.com/talentdesk/recruiter-notify/internal/queue"
	"github.com/talentdesk/recruiter-notify/internal/ratelimiter"
	"github.com/talentdesk/recruiter-notify/internal/repository"
)

// Options bound the processor's two timer loops.
type Options struct {
	TickInterval  time.Duration // business-level eligibility poll
	SweepInterval time.Duration // failed-record retry sweep
	RetryCap      int           // record-level retry ceiling for the sweep
}

func (o *Options) applyDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = 30 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Minute
	}
	if o.RetryCap <= 0 {
		o.RetryCap = 5
	}
}

// Processor owns the pipeline lifecycle. It is constructed once by the
// composition root and handed to whatever triggers enqueuing; there is no
// package-level singleton. Start and Stop are idempotent.
//
// Two timer levels exist on purpose: the queue's own fast tick moves
// individual work items, while the processor's slower tick makes
// business-level decisions (is a wave due, which records need a re-send).
type Processor struct {
	queue      *queue.MemoryQueue
	evaluator  *eligibility.Evaluator
	resolver   *eligibility.Resolver
	records    repository.NotificationRecordRepository
	jobs       repository.JobRepository
	recruiters repository.RecruiterRepository
	sender     delivery.Sender
	compose    *delivery.Composer
	limiter    *ratelimiter.SendLimiter
	logger     *zap.Logger
	opts       Options

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
}

func New(
	q *queue.MemoryQueue,
	evaluator *eligibility.Evaluator,
	resolver *eligibility.Resolver,
	records repository.NotificationRecordRepository,
	jobs repository.JobRepository,
	recruiters repository.RecruiterRepository,
	sender delivery.Sender,
	compose *delivery.Composer,
	limiter *ratelimiter.SendLimiter,
	logger *zap.Logger,
	opts Options,
) *Processor {
	opts.applyDefaults()
	return &Processor{
		queue:      q,
		evaluator:  evaluator,
		resolver:   resolver,
		records:    records,
		jobs:       jobs,
		recruiters: recruiters,
		sender:     sender,
		compose:    compose,
		limiter:    limiter,
		logger:     logger,
		opts:       opts,
	}
}

// Start launches the queue dispatch loop, the business tick and the retry
// sweep. Calling Start while running is a no-op, so the timers can never be
// silently duplicated.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.logger.Debug("processor already running, start ignored")
		return
	}
	p.running = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.loops.Add(3)
	go func() {
		defer p.loops.Done()
		p.queue.Run(runCtx)
	}()
	go func() {
		defer p.loops.Done()
		p.tickLoop(runCtx)
	}()
	go func() {
		defer p.loops.Done()
		p.sweepLoop(runCtx)
	}()

	p.logger.Info("processor started",
		zap.Duration("tick_interval", p.opts.TickInterval),
		zap.Duration("sweep_interval", p.opts.SweepInterval))
}

// Stop cancels both timer loops and waits for in-flight dispatches to
// finish. Safe to call repeatedly or before Start.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.loops.Wait()
	p.queue.Drain()
	p.logger.Info("processor stopped")
}

// Running reports whether the loops are live.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Queue exposes the underlying queue for observability endpoints.
func (p *Processor) Queue() *queue.MemoryQueue {
	return p.queue
}

func (p *Processor) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Tick boundary: errors are logged and contained. A bad pass
			// must never kill the loop or surface to a user request.
			if err := p.RunEvaluation(ctx); err != nil {
				p.logger.Error("evaluation tick failed", zap.Error(err))
			}
		}
	}
}

func (p *Processor) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.SweepRetries(ctx); err != nil {
				p.logger.Error("retry sweep failed", zap.Error(err))
			}
		}
	}
}

// RunEvaluation performs one business tick: if the day's wave is due, fan
// out one work item per eligible recruiter and close the global ledger
// record for the day. Also callable directly (manual trigger endpoint,
// post-job-creation hook).
func (p *Processor) RunEvaluation(ctx context.Context) error {
	decision, err := p.evaluator.ShouldSendGlobal(ctx)
	if err != nil {
		return fmt.Errorf("global eligibility: %w", err)
	}
	if !decision.ShouldSend {
		p.logger.Debug("no notification wave due", zap.String("reason", decision.Reason))
		return nil
	}

	enqueued, err := p.AddBulkEmailNotificationJob(ctx, decision.JobIDs, decision.JobCount)
	if err != nil {
		return err
	}

	// The global record tracks the wave itself; it is closed once the
	// fan-out is enqueued so a later tick in the same day short-circuits.
	global, err := p.records.CreateOrMerge(ctx, nil, domain.EmailTypeJobNotification,
		decision.JobCount, decision.JobIDs, enqueued)
	if err != nil {
		return fmt.Errorf("create global record: %w", err)
	}
	if err := p.records.MarkSent(ctx, global.ID); err != nil {
		return fmt.Errorf("close global record: %w", err)
	}

	p.logger.Info("notification wave dispatched",
		zap.Int("job_count", decision.JobCount),
		zap.Int("recipients", enqueued))
	return nil
}

// AddBulkEmailNotificationJob fans out one work item per currently-active
// recruiter that is still eligible today. Returns the number enqueued.
func (p *Processor) AddBulkEmailNotificationJob(ctx context.Context, jobIDs []string, jobCount int) (int, error) {
	recruiters, err := p.recruiters.ListActiveRecruiters(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active recruiters: %w", err)
	}

	enqueued := 0
	for _, rec := range recruiters {
		perRecipient, err := p.evaluator.ShouldSendForRecipient(ctx, rec.ID)
		if err != nil {
			p.logger.Error("recipient eligibility check failed",
				zap.String("recipient_id", rec.ID), zap.Error(err))
			continue
		}
		if !perRecipient.ShouldSend {
			continue
		}
		if _, err := p.AddEmailNotificationJob(ctx, rec, jobIDs, jobCount); err != nil {
			p.logger.Error("failed to enqueue notification",
				zap.String("recipient_id", rec.ID), zap.Error(err))
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// AddEmailNotificationJob records the intent in the ledger (merging into any
// existing record for today) and enqueues one work item for the recruiter.
// Two calls for the same recruiter on the same day merge into one record;
// the emailSent guard keeps the second queue item from double-sending.
func (p *Processor) AddEmailNotificationJob(ctx context.Context, rec domain.Recruiter, jobIDs []string, jobCount int) (string, error) {
	if _, err := p.records.CreateOrMerge(ctx, &rec.ID, domain.EmailTypeJobNotification,
		jobCount, jobIDs, 1); err != nil {
		return "", fmt.Errorf("record for recipient %s: %w", rec.ID, err)
	}

	return p.queue.Enqueue(domain.KindSendRecipientNotification, domain.NotificationPayload{
		RecipientID:   rec.ID,
		RecipientName: rec.Name,
		Address:       rec.Address,
		JobIDs:        jobIDs,
		JobCount:      jobCount,
	}, domain.PriorityMedium, nil)
}

// SweepRetries re-attempts failed ledger records whose retry time has
// passed. The send goes directly through the transport rather than back
// into the queue: queued items are ephemeral, the record is the durable
// retry anchor.
func (p *Processor) SweepRetries(ctx context.Context) error {
	due, err := p.records.FindDueRetries(ctx, p.opts.RetryCap)
	if err != nil {
		return fmt.Errorf("find due retries: %w", err)
	}

	for _, rec := range due {
		if rec.RecipientID == nil {
			// Wave-level record: no single address to re-send to. Each
			// recipient's own record drives its retry.
			continue
		}
		if rec.EmailType != domain.EmailTypeJobNotification {
			// Job-update alerts are fire-once; they are never re-sent.
			continue
		}
		p.retryRecord(ctx, rec)
	}
	return nil
}

func (p *Processor) retryRecord(ctx context.Context, rec *domain.NotificationRecord) {
	log := p.logger.With(
		zap.String("record_id", rec.ID),
		zap.String("recipient_id", *rec.RecipientID),
		zap.Int("retry_count", rec.RetryCount))

	recruiter, err := p.recruiters.FindByID(ctx, *rec.RecipientID)
	if err != nil {
		log.Error("retry sweep: recruiter lookup failed", zap.Error(err))
		return
	}

	summaries, err := p.jobs.FindByIDs(ctx, rec.JobIDs)
	if err != nil {
		log.Error("retry sweep: job lookup failed", zap.Error(err))
		return
	}

	subject, htmlBody, textBody, err := p.compose.ComposeDigest(recruiter.Name, summaries)
	if err != nil {
		log.Error("retry sweep: compose failed", zap.Error(err))
		return
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return
	}

	if sendErr := p.sender.Send(ctx, recruiter.Address, subject, htmlBody, textBody); sendErr != nil {
		log.Warn("retry sweep: send failed", zap.Error(sendErr))
		if err := p.records.MarkFailed(ctx, rec.ID, sendErr.Error()); err != nil {
			log.Error("retry sweep: mark failed errored", zap.Error(err))
		}
		return
	}

	if err := p.records.MarkSent(ctx, rec.ID); err != nil {
		log.Error("retry sweep: mark sent errored", zap.Error(err))
		return
	}
	log.Info("retry sweep: record delivered")
}

// NotifyJobUpdated sends the job-content-changed alert to every eligible
// recruiter, synchronously and best-effort. These alerts do not flow through
// the work-item queue: a miss is acceptable, a duplicate is not, so each
// recipient's daily job_update record is the only gate. Returns the number
// of alerts delivered.
func (p *Processor) NotifyJobUpdated(ctx context.Context, jobID string) (int, error) {
	summaries, err := p.jobs.FindByIDs(ctx, []string{jobID})
	if err != nil {
		return 0, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if len(summaries) == 0 {
		return 0, domain.ErrJobNotFound
	}
	job := summaries[0]

	eligible, err := p.resolver.EligibleRecipients(ctx, jobID)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range eligible {
		recID := rec.ID
		ledger, err := p.records.CreateOrMerge(ctx, &recID, domain.EmailTypeJobUpdate, 1, []string{jobID}, 1)
		if err != nil {
			p.logger.Error("job-update record failed",
				zap.String("recipient_id", rec.ID), zap.Error(err))
			continue
		}
		if ledger.EmailSent {
			continue
		}

		subject, htmlBody, textBody := p.compose.ComposeJobUpdate(rec.Name, job)
		if err := p.limiter.Wait(ctx); err != nil {
			return sent, err
		}
		if sendErr := p.sender.Send(ctx, rec.Address, subject, htmlBody, textBody); sendErr != nil {
			p.logger.Warn("job-update send failed",
				zap.String("recipient_id", rec.ID), zap.Error(sendErr))
			if err := p.records.MarkFailed(ctx, ledger.ID, sendErr.Error()); err != nil {
				p.logger.Error("job-update mark failed errored", zap.Error(err))
			}
			continue
		}
		if err := p.records.MarkSent(ctx, ledger.ID); err != nil {
			p.logger.Error("job-update mark sent errored", zap.Error(err))
		}
		sent++
	}
	return sent, nil
}
