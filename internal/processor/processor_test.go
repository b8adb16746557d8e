package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/talentdesk/recruiter-notify/internal/delivery"
	"github.com/talentdesk/recruiter-notify/internal/domain"
	"github.com/talentdesk/recruiter-notify/internal/eligibility"
	"github.com/talentdesk/recruiter-notify/internal/queue"
	"github.com/talentdesk/recruiter-notify/internal/ratelimiter"
	"github.com/talentdesk/recruiter-notify/internal/repository"
	"github.com/talentdesk/recruiter-notify/internal/settings"
)

type fixture struct {
	records    *repository.MockRecordRepository
	jobs       *repository.MockJobRepository
	recruiters *repository.MockRecruiterRepository
	sender     *delivery.MockSender
	store      *settings.MemoryStore
	queue      *queue.MemoryQueue
	proc       *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		records:    repository.NewMockRecordRepository(),
		jobs:       repository.NewMockJobRepository(),
		recruiters: repository.NewMockRecruiterRepository(),
		sender:     delivery.NewMockSender(),
		store:      settings.NewMemoryStore(),
	}

	logger := zap.NewNop()
	compose := delivery.NewComposer()
	limiter := ratelimiter.New(1000)
	evaluator := eligibility.NewEvaluator(f.records, f.jobs, f.store, logger)
	resolver := eligibility.NewResolver(f.recruiters)

	handler := NewWorkItemHandler(f.records, f.jobs, f.sender, compose, limiter, logger)
	f.queue = queue.New(handler, queue.Options{}, logger, queue.Hooks{})

	f.proc = New(f.queue, evaluator, resolver, f.records, f.jobs, f.recruiters,
		f.sender, compose, limiter, logger, Options{
			TickInterval:  time.Hour, // loops are driven manually in tests
			SweepInterval: time.Hour,
		})
	return f
}

func (f *fixture) seedJobs(t *testing.T, n int) []domain.JobSummary {
	t.Helper()
	jobs := make([]domain.JobSummary, n)
	for i := range jobs {
		jobs[i] = domain.JobSummary{
			ID:       "job-" + string(rune('a'+i)),
			Title:    "Backend Engineer",
			Location: "Remote",
		}
	}
	f.jobs.SetJobs(jobs...)
	return jobs
}

var (
	alice = domain.Recruiter{ID: "rec-alice", Name: "Alice", Address: "alice@agency.example"}
	bob   = domain.Recruiter{ID: "rec-bob", Name: "Bob", Address: "bob@agency.example"}
)

func TestStartAndStopAreIdempotent(t *testing.T) {
	f := newFixture(t)

	if f.proc.Running() {
		t.Fatal("processor running before Start")
	}

	ctx := context.Background()
	f.proc.Start(ctx)
	f.proc.Start(ctx) // second call must be a no-op, not a duplicate loop
	if !f.proc.Running() {
		t.Fatal("processor not running after Start")
	}

	f.proc.Stop()
	if f.proc.Running() {
		t.Fatal("processor still running after Stop")
	}
	f.proc.Stop() // repeated Stop must not panic or deadlock

	// Restart works after a full stop.
	f.proc.Start(ctx)
	if !f.proc.Running() {
		t.Fatal("processor did not restart")
	}
	f.proc.Stop()
}

func TestRunEvaluationFansOutAndClosesTheWave(t *testing.T) {
	f := newFixture(t)
	f.seedJobs(t, 5) // default threshold is 5
	seedRecruiters(f, alice, bob)

	ctx := context.Background()
	if err := f.proc.RunEvaluation(ctx); err != nil {
		t.Fatal(err)
	}

	if ready := f.queue.ReadyItems(10); len(ready) != 2 {
		t.Fatalf("queued %d items, want one per recruiter (2)", len(ready))
	}

	// The wave-level record is closed immediately so the next tick in the
	// same day is a no-op even before any digest is delivered.
	global, err := f.records.FindTodayRecord(ctx, nil, domain.EmailTypeJobNotification)
	if err != nil {
		t.Fatal(err)
	}
	if !global.EmailSent {
		t.Fatal("global record not closed after fan-out")
	}

	if err := f.proc.RunEvaluation(ctx); err != nil {
		t.Fatal(err)
	}
	if ready := f.queue.ReadyItems(10); len(ready) != 2 {
		t.Fatalf("second tick enqueued more items: %d", len(ready))
	}
}

func seedRecruiters(f *fixture, recs ...domain.Recruiter) *repository.MockRecruiterRepository {
	repo := repository.NewMockRecruiterRepository(recs...)
	f.recruiters = repo
	// Rewire the processor dependencies that hold the old repo.
	logger := zap.NewNop()
	compose := delivery.NewComposer()
	limiter := ratelimiter.New(1000)
	evaluator := eligibility.NewEvaluator(f.records, f.jobs, f.store, logger)
	resolver := eligibility.NewResolver(repo)
	f.proc = New(f.queue, evaluator, resolver, f.records, f.jobs, repo,
		f.sender, compose, limiter, logger, Options{
			TickInterval:  time.Hour,
			SweepInterval: time.Hour,
		})
	return repo
}

func TestWaveDeliversDigestsEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.seedJobs(t, 5)
	seedRecruiters(f, alice, bob)

	ctx := context.Background()
	if err := f.proc.RunEvaluation(ctx); err != nil {
		t.Fatal(err)
	}

	f.queue.DispatchOnce(ctx)
	f.queue.Drain()

	sent := f.sender.Sent()
	if len(sent) != 2 {
		t.Fatalf("delivered %d digests, want 2", len(sent))
	}
	addresses := map[string]bool{}
	for _, e := range sent {
		addresses[e.To] = true
	}
	if !addresses[alice.Address] || !addresses[bob.Address] {
		t.Fatalf("digests went to %v", addresses)
	}

	for _, rec := range []domain.Recruiter{alice, bob} {
		id := rec.ID
		ledger, err := f.records.FindTodayRecord(ctx, &id, domain.EmailTypeJobNotification)
		if err != nil {
			t.Fatalf("no ledger record for %s: %v", rec.ID, err)
		}
		if !ledger.EmailSent {
			t.Fatalf("record for %s not marked sent", rec.ID)
		}
	}
}

func TestRepeatedEnqueueMergesIntoOneDailyRecord(t *testing.T) {
	f := newFixture(t)
	f.seedJobs(t, 5)

	ctx := context.Background()
	if _, err := f.proc.AddEmailNotificationJob(ctx, alice, []string{"job-a", "job-b"}, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := f.proc.AddEmailNotificationJob(ctx, alice, []string{"job-b", "job-c"}, 6); err != nil {
		t.Fatal(err)
	}

	id := alice.ID
	ledger, err := f.records.FindTodayRecord(ctx, &id, domain.EmailTypeJobNotification)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"job-a", "job-b", "job-c"}
	if len(ledger.JobIDs) != len(want) {
		t.Fatalf("merged jobIDs = %v, want %v", ledger.JobIDs, want)
	}
	for i, id := range want {
		if ledger.JobIDs[i] != id {
			t.Fatalf("merged jobIDs = %v, want %v", ledger.JobIDs, want)
		}
	}
	if len(f.records.All()) != 1 {
		t.Fatalf("stored %d records, want the single merged one", len(f.records.All()))
	}
}

func TestFailedDigestMarksRecordForSweep(t *testing.T) {
	f := newFixture(t)
	f.seedJobs(t, 5)
	f.sender.FailFirst = -1

	ctx := context.Background()
	if _, err := f.proc.AddEmailNotificationJob(ctx, alice, []string{"job-a"}, 5); err != nil {
		t.Fatal(err)
	}
	f.queue.DispatchOnce(ctx)
	f.queue.Drain()

	id := alice.ID
	ledger, err := f.records.FindTodayRecord(ctx, &id, domain.EmailTypeJobNotification)
	if err != nil {
		t.Fatal(err)
	}
	if ledger.Status != domain.RecordFailed {
		t.Fatalf("record status = %s after failed send, want failed", ledger.Status)
	}
	if ledger.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", ledger.RetryCount)
	}
	if ledger.NextRetryAt == nil {
		t.Fatal("failed record has no next retry time")
	}
}

func TestSweepRetriesDeliversDueRecords(t *testing.T) {
	f := newFixture(t)
	f.seedJobs(t, 5)
	seedRecruiters(f, alice)

	ctx := context.Background()
	rid := alice.ID
	ledger, err := f.records.CreateOrMerge(ctx, &rid, domain.EmailTypeJobNotification, 5, []string{"job-a"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.records.MarkFailed(ctx, ledger.ID, "smtp timeout"); err != nil {
		t.Fatal(err)
	}
	f.records.ForceNextRetryAt(ledger.ID, time.Now().Add(-time.Minute))

	if err := f.proc.SweepRetries(ctx); err != nil {
		t.Fatal(err)
	}

	sent := f.sender.Sent()
	if len(sent) != 1 || sent[0].To != alice.Address {
		t.Fatalf("sweep delivered %v, want one digest to %s", sent, alice.Address)
	}

	ledgerAfter, err := f.records.FindTodayRecord(ctx, &rid, domain.EmailTypeJobNotification)
	if err != nil {
		t.Fatal(err)
	}
	if !ledgerAfter.EmailSent || ledgerAfter.Status != domain.RecordSent {
		t.Fatalf("record not closed after sweep: %+v", ledgerAfter)
	}
}

func TestSweepFailureIncrementsRetryCount(t *testing.T) {
	f := newFixture(t)
	f.seedJobs(t, 5)
	seedRecruiters(f, alice)
	f.sender.FailFirst = -1

	ctx := context.Background()
	rid := alice.ID
	ledger, _ := f.records.CreateOrMerge(ctx, &rid, domain.EmailTypeJobNotification, 5, []string{"job-a"}, 1)
	if err := f.records.MarkFailed(ctx, ledger.ID, "smtp timeout"); err != nil {
		t.Fatal(err)
	}
	f.records.ForceNextRetryAt(ledger.ID, time.Now().Add(-time.Minute))

	if err := f.proc.SweepRetries(ctx); err != nil {
		t.Fatal(err)
	}

	after, err := f.records.FindTodayRecord(ctx, &rid, domain.EmailTypeJobNotification)
	if err != nil {
		t.Fatal(err)
	}
	if after.RetryCount != 2 {
		t.Fatalf("retry count = %d after failed sweep, want 2", after.RetryCount)
	}
	if after.Status != domain.RecordFailed {
		t.Fatalf("status = %s, want failed", after.Status)
	}
}

func TestSweepSkipsWaveAndJobUpdateRecords(t *testing.T) {
	f := newFixture(t)
	seedRecruiters(f, alice)

	ctx := context.Background()

	// Wave-level record (no recipient).
	global, _ := f.records.CreateOrMerge(ctx, nil, domain.EmailTypeJobNotification, 5, []string{"job-a"}, 2)
	if err := f.records.MarkFailed(ctx, global.ID, "boom"); err != nil {
		t.Fatal(err)
	}
	f.records.ForceNextRetryAt(global.ID, time.Now().Add(-time.Minute))

	// Fire-once job-update alert.
	rid := alice.ID
	update, _ := f.records.CreateOrMerge(ctx, &rid, domain.EmailTypeJobUpdate, 1, []string{"job-a"}, 1)
	if err := f.records.MarkFailed(ctx, update.ID, "boom"); err != nil {
		t.Fatal(err)
	}
	f.records.ForceNextRetryAt(update.ID, time.Now().Add(-time.Minute))

	if err := f.proc.SweepRetries(ctx); err != nil {
		t.Fatal(err)
	}
	if n := f.sender.Calls(); n != 0 {
		t.Fatalf("sweep attempted %d sends for non-retryable records, want 0", n)
	}
}

func TestNotifyJobUpdatedAlertsInterestedRecruitersOnce(t *testing.T) {
	f := newFixture(t)
	jobs := f.seedJobs(t, 1)
	repo := seedRecruiters(f, alice, bob)
	repo.SetBookmarkers(jobs[0].ID, alice)
	repo.SetCandidateUploaders(jobs[0].ID, alice, bob) // alice in both sets

	ctx := context.Background()
	sent, err := f.proc.NotifyJobUpdated(ctx, jobs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if sent != 2 {
		t.Fatalf("alerted %d recruiters, want 2 (deduplicated union)", sent)
	}

	// The daily job_update record gates a second alert for the same job.
	sent, err = f.proc.NotifyJobUpdated(ctx, jobs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if sent != 0 {
		t.Fatalf("second update same day alerted %d recruiters, want 0", sent)
	}
	if total := f.sender.Calls(); total != 2 {
		t.Fatalf("transport saw %d sends, want 2", total)
	}
}

func TestNotifyJobUpdatedUnknownJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.proc.NotifyJobUpdated(context.Background(), "no-such-job")
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestNotifyJobUpdatedSendFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	jobs := f.seedJobs(t, 1)
	repo := seedRecruiters(f, alice, bob)
	repo.SetBookmarkers(jobs[0].ID, alice, bob)
	f.sender.FailFirst = 1 // first alert bounces, second goes through

	sent, err := f.proc.NotifyJobUpdated(context.Background(), jobs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1 delivered despite the first failure", sent)
	}
}

func TestRunEvaluationContainsRecruiterListingError(t *testing.T) {
	f := newFixture(t)
	f.seedJobs(t, 5)
	repo := seedRecruiters(f, alice)
	repo.ListErr = errors.New("db down")

	// The fan-out error must surface to the tick (for logging) without
	// closing the day's wave, so a later tick can retry it.
	err := f.proc.RunEvaluation(context.Background())
	if err == nil {
		t.Fatal("expected error when recruiter listing fails")
	}
	if _, findErr := f.records.FindTodayRecord(context.Background(), nil, domain.EmailTypeJobNotification); !errors.Is(findErr, domain.ErrRecordNotFound) {
		t.Fatal("wave record created despite failed fan-out")
	}
}

func TestHandlerRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	h := NewWorkItemHandler(f.records, f.jobs, f.sender, delivery.NewComposer(),
		ratelimiter.New(1000), zap.NewNop())

	err := h.Handle(context.Background(), &domain.WorkItem{Kind: domain.WorkKind("mystery")})
	if !errors.Is(err, domain.ErrUnknownWorkKind) {
		t.Fatalf("err = %v, want ErrUnknownWorkKind", err)
	}
}
