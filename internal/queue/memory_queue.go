package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentdesk/recruiter-notify/internal/domain"
)

// Handler executes one work item. Implementations switch exhaustively on
// the item's Kind and return an error to trigger the retry path.
type Handler interface {
	Handle(ctx context.Context, item *domain.WorkItem) error
}

// Hooks carries the metric callback functions injected by main.
// Using a struct keeps the queue constructor signature clean.
type Hooks struct {
	OnCompleted func(kind domain.WorkKind, latency time.Duration)
	OnFailed    func(kind domain.WorkKind)
	OnDepth     func(s Status)
}

// Status is the observability snapshot of the queue.
// Pending includes items awaiting their scheduledAt or a retry slot.
type Status struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Active    int `json:"active"`
}

// Options bound the queue's scheduling behaviour.
type Options struct {
	Tick           time.Duration // dispatch tick interval
	MaxConcurrency int           // in-flight dispatch cap
	MaxAttempts    int           // per-item attempt cap
	CleanupAge     time.Duration // terminal items older than this are purged

	// Now overrides the queue clock; tests use it to steer scheduling
	// and cleanup decisions without sleeping.
	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Tick <= 0 {
		o.Tick = 5 * time.Second
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 3
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = domain.DefaultMaxAttempts
	}
	if o.CleanupAge <= 0 {
		o.CleanupAge = 24 * time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// MemoryQueue holds work items for the notification pipeline. It is
// process-local and best-effort: items do not survive a restart. The
// persistent NotificationRecord store, not the queue, is the durable
// authority on what has been sent.
//
// One mutex guards the item list and the active counter; dispatches run
// concurrently but every state transition happens under the lock.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []*domain.WorkItem
	active int

	opts    Options
	handler Handler
	logger  *zap.Logger
	hooks   Hooks

	inflight sync.WaitGroup

	// now is swapped in tests to steer scheduledAt and cleanup decisions.
	now func() time.Time
}

// New constructs a MemoryQueue. The handler is invoked once per dispatch
// attempt; hooks are optional (nil callbacks are replaced with no-ops).
func New(handler Handler, opts Options, logger *zap.Logger, hooks Hooks) *MemoryQueue {
	opts.applyDefaults()
	if hooks.OnCompleted == nil {
		hooks.OnCompleted = func(domain.WorkKind, time.Duration) {}
	}
	if hooks.OnFailed == nil {
		hooks.OnFailed = func(domain.WorkKind) {}
	}
	if hooks.OnDepth == nil {
		hooks.OnDepth = func(Status) {}
	}
	return &MemoryQueue{
		opts:    opts,
		handler: handler,
		logger:  logger,
		hooks:   hooks,
		now:     opts.Now,
	}
}

// Enqueue appends a new work item and re-sorts the pool by priority
// (descending) then creation time (FIFO within a priority). scheduledAt
// may be nil for immediately-ready work. Returns the generated item ID.
func (q *MemoryQueue) Enqueue(kind domain.WorkKind, payload domain.NotificationPayload, priority domain.Priority, scheduledAt *time.Time) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownWorkKind, kind)
	}

	item := &domain.WorkItem{
		ID:          uuid.New().String(),
		Kind:        kind,
		Payload:     payload,
		Priority:    priority,
		MaxAttempts: q.opts.MaxAttempts,
		CreatedAt:   q.now(),
		ScheduledAt: scheduledAt,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	sort.SliceStable(q.items, func(i, j int) bool {
		if q.items[i].Priority != q.items[j].Priority {
			return q.items[i].Priority > q.items[j].Priority
		}
		return q.items[i].CreatedAt.Before(q.items[j].CreatedAt)
	})
	return item.ID, nil
}

// Status returns the current queue counters.
func (q *MemoryQueue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusLocked()
}

func (q *MemoryQueue) statusLocked() Status {
	s := Status{Total: len(q.items), Active: q.active}
	for _, item := range q.items {
		switch {
		case item.CompletedAt != nil:
			s.Completed++
		case item.FailedAt != nil:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

// ReadyItems returns clones of up to limit dispatchable items in pool order.
// Exposed for the ops API; dispatch uses the internal selection under lock.
func (q *MemoryQueue) ReadyItems(limit int) []domain.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var out []domain.WorkItem
	for _, item := range q.items {
		if len(out) >= limit {
			break
		}
		if item.Ready(now) {
			out = append(out, *item)
		}
	}
	return out
}

// FailedItems returns clones of permanently failed items for operator
// inspection. They stay in the queue until the cleanup pass ages them out.
func (q *MemoryQueue) FailedItems() []domain.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.WorkItem
	for _, item := range q.items {
		if item.FailedAt != nil {
			out = append(out, *item)
		}
	}
	return out
}

// Item returns a clone of the identified item, if still held.
func (q *MemoryQueue) Item(id string) (domain.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.ID == id {
			return *item, true
		}
	}
	return domain.WorkItem{}, false
}

// Run drives the dispatch loop until ctx is cancelled. In-flight dispatches
// started before cancellation are allowed to finish; call Drain to wait.
func (q *MemoryQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.opts.Tick)
	defer ticker.Stop()

	q.logger.Info("queue dispatch loop started",
		zap.Duration("tick", q.opts.Tick),
		zap.Int("max_concurrency", q.opts.MaxConcurrency))

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("queue dispatch loop stopping")
			return
		case <-ticker.C:
			q.DispatchOnce(ctx)
		}
	}
}

// Drain blocks until every in-flight dispatch has returned.
func (q *MemoryQueue) Drain() {
	q.inflight.Wait()
}

// DispatchOnce runs a single dispatch tick: purge aged terminal items,
// then start as many ready items as free concurrency slots allow.
// Each started item runs in its own goroutine; the active counter is
// incremented before launch and decremented in a deferred guard, so a
// slot can never leak even if the handler panics.
func (q *MemoryQueue) DispatchOnce(ctx context.Context) {
	now := q.now()

	q.mu.Lock()
	q.cleanupLocked(now)

	slots := q.opts.MaxConcurrency - q.active
	if slots <= 0 {
		depth := q.statusLocked()
		q.mu.Unlock()
		q.hooks.OnDepth(depth)
		return
	}

	var started []*domain.WorkItem
	for _, item := range q.items {
		if len(started) >= slots {
			break
		}
		if !item.Ready(now) {
			continue
		}
		item.Attempts++
		startedAt := now
		item.ProcessingStartedAt = &startedAt
		q.active++
		started = append(started, item)
	}
	depth := q.statusLocked()
	q.mu.Unlock()

	q.hooks.OnDepth(depth)

	for _, item := range started {
		q.inflight.Add(1)
		go q.dispatch(ctx, item)
	}
}

func (q *MemoryQueue) dispatch(ctx context.Context, item *domain.WorkItem) {
	start := q.now()
	defer func() {
		q.mu.Lock()
		q.active--
		q.mu.Unlock()
		q.inflight.Done()
	}()

	err := q.handle(ctx, item)
	now := q.now()

	var permanent bool
	var delay time.Duration
	q.mu.Lock()
	switch {
	case err == nil:
		item.CompletedAt = &now
	case item.Attempts >= item.MaxAttempts:
		msg := err.Error()
		item.LastError = &msg
		item.FailedAt = &now
		permanent = true
	default:
		msg := err.Error()
		item.LastError = &msg
		delay = domain.ItemBackoff(item.Attempts)
		next := now.Add(delay)
		item.ScheduledAt = &next
		item.ProcessingStartedAt = nil
	}
	attempts := item.Attempts
	q.mu.Unlock()

	switch {
	case err == nil:
		q.hooks.OnCompleted(item.Kind, now.Sub(start))
	case permanent:
		q.logger.Error("work item permanently failed",
			zap.String("id", item.ID),
			zap.String("kind", string(item.Kind)),
			zap.Int("attempts", attempts),
			zap.Error(err))
		q.hooks.OnFailed(item.Kind)
	default:
		q.logger.Warn("work item failed, rescheduled",
			zap.String("id", item.ID),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", delay),
			zap.Error(err))
	}
}

// handle invokes the handler with panic containment: a panicking item must
// not take down the dispatch loop or its sibling dispatches.
func (q *MemoryQueue) handle(ctx context.Context, item *domain.WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return q.handler.Handle(ctx, item)
}

// cleanupLocked purges completed or permanently failed items whose terminal
// timestamp is older than the cleanup age, bounding memory growth.
func (q *MemoryQueue) cleanupLocked(now time.Time) {
	cutoff := now.Add(-q.opts.CleanupAge)
	kept := q.items[:0]
	for _, item := range q.items {
		terminalAt := item.CompletedAt
		if terminalAt == nil {
			terminalAt = item.FailedAt
		}
		if terminalAt != nil && terminalAt.Before(cutoff) {
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
}
