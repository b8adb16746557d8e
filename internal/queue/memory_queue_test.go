package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/talentdesk/recruiter-notify/internal/domain"
)

// fakeClock lets tests steer the queue's view of time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingHandler counts invocations and fails the first failFirst of them.
type recordingHandler struct {
	mu        sync.Mutex
	calls     []string
	failFirst int // -1 means fail forever
	block     chan struct{}
	started   chan struct{}
	panicAll  bool
}

func (h *recordingHandler) Handle(_ context.Context, item *domain.WorkItem) error {
	if h.panicAll {
		panic("boom")
	}
	if h.started != nil {
		h.started <- struct{}{}
	}
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.calls = append(h.calls, item.ID)
	n := len(h.calls)
	fail := h.failFirst == -1 || n <= h.failFirst
	h.mu.Unlock()
	if fail {
		return errors.New("send rejected")
	}
	return nil
}

func (h *recordingHandler) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func newTestQueue(t *testing.T, h Handler, clock *fakeClock) *MemoryQueue {
	t.Helper()
	return New(h, Options{Now: clock.Now}, zap.NewNop(), Hooks{})
}

func TestEnqueueOrdersByPriorityThenAge(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(t, &recordingHandler{}, clock)

	payload := domain.NotificationPayload{RecipientID: "r1"}
	lowID, _ := q.Enqueue(domain.KindSendRecipientNotification, payload, domain.PriorityLow, nil)
	clock.Advance(time.Second)
	medFirst, _ := q.Enqueue(domain.KindSendRecipientNotification, payload, domain.PriorityMedium, nil)
	clock.Advance(time.Second)
	medSecond, _ := q.Enqueue(domain.KindSendRecipientNotification, payload, domain.PriorityMedium, nil)
	clock.Advance(time.Second)
	highID, _ := q.Enqueue(domain.KindSendRecipientNotification, payload, domain.PriorityHigh, nil)

	ready := q.ReadyItems(10)
	want := []string{highID, medFirst, medSecond, lowID}
	if len(ready) != len(want) {
		t.Fatalf("ready items = %d, want %d", len(ready), len(want))
	}
	for i, id := range want {
		if ready[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, ready[i].ID, id)
		}
	}
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	q := newTestQueue(t, &recordingHandler{}, newFakeClock())
	_, err := q.Enqueue(domain.WorkKind("mystery"), domain.NotificationPayload{}, domain.PriorityLow, nil)
	if !errors.Is(err, domain.ErrUnknownWorkKind) {
		t.Fatalf("err = %v, want ErrUnknownWorkKind", err)
	}
}

func TestScheduledItemsWaitForTheirTime(t *testing.T) {
	clock := newFakeClock()
	h := &recordingHandler{}
	q := newTestQueue(t, h, clock)

	future := clock.Now().Add(10 * time.Minute)
	if _, err := q.Enqueue(domain.KindSendRecipientNotification, domain.NotificationPayload{}, domain.PriorityMedium, &future); err != nil {
		t.Fatal(err)
	}

	q.DispatchOnce(context.Background())
	q.Drain()
	if n := h.CallCount(); n != 0 {
		t.Fatalf("handler called %d times before scheduled time", n)
	}

	clock.Advance(10 * time.Minute)
	q.DispatchOnce(context.Background())
	q.Drain()
	if n := h.CallCount(); n != 1 {
		t.Fatalf("handler called %d times after scheduled time, want 1", n)
	}
}

func TestDispatchRespectsConcurrencyCap(t *testing.T) {
	clock := newFakeClock()
	h := &recordingHandler{
		block:   make(chan struct{}),
		started: make(chan struct{}, 10),
	}
	q := newTestQueue(t, h, clock)

	for i := 0; i < 10; i++ {
		if _, err := q.Enqueue(domain.KindSendRecipientNotification, domain.NotificationPayload{}, domain.PriorityMedium, nil); err != nil {
			t.Fatal(err)
		}
	}

	q.DispatchOnce(context.Background())

	// Exactly three dispatches may start; a fourth would deadlock the
	// blocked handler, so poll the started channel with a timeout.
	for i := 0; i < 3; i++ {
		select {
		case <-h.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("dispatch %d never started", i)
		}
	}
	select {
	case <-h.started:
		t.Fatal("more than MaxConcurrency dispatches started")
	case <-time.After(50 * time.Millisecond):
	}

	if s := q.Status(); s.Active != 3 {
		t.Fatalf("active = %d, want 3", s.Active)
	}

	// A second tick with all slots taken must start nothing.
	q.DispatchOnce(context.Background())
	select {
	case <-h.started:
		t.Fatal("tick with zero free slots started a dispatch")
	case <-time.After(50 * time.Millisecond):
	}

	close(h.block)
	q.Drain()

	if s := q.Status(); s.Active != 0 {
		t.Fatalf("active = %d after drain, want 0", s.Active)
	}
}

func TestFailedItemIsRescheduledWithBackoff(t *testing.T) {
	clock := newFakeClock()
	h := &recordingHandler{failFirst: 1}
	q := newTestQueue(t, h, clock)

	id, err := q.Enqueue(domain.KindSendRecipientNotification, domain.NotificationPayload{}, domain.PriorityMedium, nil)
	if err != nil {
		t.Fatal(err)
	}

	q.DispatchOnce(context.Background())
	q.Drain()

	item, ok := q.Item(id)
	if !ok {
		t.Fatal("item gone after first attempt")
	}
	if item.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", item.Attempts)
	}
	if item.ScheduledAt == nil {
		t.Fatal("failed item has no retry schedule")
	}
	wantAt := clock.Now().Add(domain.ItemBackoff(1))
	if !item.ScheduledAt.Equal(wantAt) {
		t.Fatalf("rescheduled at %v, want %v", item.ScheduledAt, wantAt)
	}
	if item.ProcessingStartedAt != nil {
		t.Fatal("processingStartedAt not cleared on reschedule")
	}

	// Not ready until the backoff elapses.
	q.DispatchOnce(context.Background())
	q.Drain()
	if n := h.CallCount(); n != 1 {
		t.Fatalf("handler called %d times during backoff, want 1", n)
	}

	clock.Advance(domain.ItemBackoff(1))
	q.DispatchOnce(context.Background())
	q.Drain()

	item, _ = q.Item(id)
	if item.CompletedAt == nil {
		t.Fatal("item not completed after successful retry")
	}
}

func TestItemFailsPermanentlyAfterMaxAttempts(t *testing.T) {
	clock := newFakeClock()
	h := &recordingHandler{failFirst: -1}
	q := newTestQueue(t, h, clock)

	id, err := q.Enqueue(domain.KindSendRecipientNotification, domain.NotificationPayload{}, domain.PriorityMedium, nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		q.DispatchOnce(context.Background())
		q.Drain()
		clock.Advance(10 * time.Minute) // beyond any backoff
	}

	if n := h.CallCount(); n != domain.DefaultMaxAttempts {
		t.Fatalf("handler called %d times, want exactly %d", n, domain.DefaultMaxAttempts)
	}

	item, ok := q.Item(id)
	if !ok {
		t.Fatal("failed item should remain visible until cleanup")
	}
	if item.FailedAt == nil {
		t.Fatal("item not marked permanently failed")
	}
	if item.LastError == nil || *item.LastError == "" {
		t.Fatal("permanent failure did not record the last error")
	}

	failed := q.FailedItems()
	if len(failed) != 1 || failed[0].ID != id {
		t.Fatalf("FailedItems = %+v, want the one failed item", failed)
	}
}

func TestCleanupPurgesOldTerminalItems(t *testing.T) {
	clock := newFakeClock()
	h := &recordingHandler{}
	q := newTestQueue(t, h, clock)

	id, _ := q.Enqueue(domain.KindSendRecipientNotification, domain.NotificationPayload{}, domain.PriorityMedium, nil)
	q.DispatchOnce(context.Background())
	q.Drain()

	if item, _ := q.Item(id); item.CompletedAt == nil {
		t.Fatal("item should have completed")
	}

	// Still held inside the retention window.
	clock.Advance(23 * time.Hour)
	q.DispatchOnce(context.Background())
	if _, ok := q.Item(id); !ok {
		t.Fatal("completed item purged before cleanup age")
	}

	clock.Advance(2 * time.Hour)
	q.DispatchOnce(context.Background())
	if _, ok := q.Item(id); ok {
		t.Fatal("completed item not purged after cleanup age")
	}
	if s := q.Status(); s.Total != 0 {
		t.Fatalf("total = %d after cleanup, want 0", s.Total)
	}
}

func TestStatusCountsByLifecycleState(t *testing.T) {
	clock := newFakeClock()
	h := &recordingHandler{failFirst: 1}
	q := newTestQueue(t, h, clock)

	// First item fails once and completes on retry; second stays pending
	// behind a future schedule.
	retryID, _ := q.Enqueue(domain.KindSendRecipientNotification, domain.NotificationPayload{}, domain.PriorityHigh, nil)
	for i := 0; i < 3; i++ {
		q.DispatchOnce(context.Background())
		q.Drain()
		clock.Advance(10 * time.Minute)
	}
	item, _ := q.Item(retryID)
	if item.CompletedAt == nil {
		t.Fatal("expected first item to complete on retry")
	}

	future := clock.Now().Add(time.Hour)
	q.Enqueue(domain.KindSendRecipientNotification, domain.NotificationPayload{}, domain.PriorityLow, &future)

	s := q.Status()
	if s.Total != 2 || s.Completed != 1 || s.Pending != 1 || s.Failed != 0 {
		t.Fatalf("status = %+v, want total=2 completed=1 pending=1", s)
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	clock := newFakeClock()
	h := &recordingHandler{panicAll: true}
	q := newTestQueue(t, h, clock)

	id, _ := q.Enqueue(domain.KindSendRecipientNotification, domain.NotificationPayload{}, domain.PriorityMedium, nil)
	q.DispatchOnce(context.Background())
	q.Drain()

	item, ok := q.Item(id)
	if !ok {
		t.Fatal("item lost after panic")
	}
	if item.LastError == nil {
		t.Fatal("panic did not record an error")
	}
	if s := q.Status(); s.Active != 0 {
		t.Fatalf("active = %d after panic, want 0", s.Active)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	clock := newFakeClock()
	q := New(&recordingHandler{}, Options{Tick: time.Millisecond, Now: clock.Now}, zap.NewNop(), Hooks{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestHooksFireOnOutcome(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	var completed, failed int
	hooks := Hooks{
		OnCompleted: func(domain.WorkKind, time.Duration) {
			mu.Lock()
			completed++
			mu.Unlock()
		},
		OnFailed: func(domain.WorkKind) {
			mu.Lock()
			failed++
			mu.Unlock()
		},
	}

	h := &recordingHandler{failFirst: -1}
	q := New(h, Options{Now: clock.Now}, zap.NewNop(), hooks)

	q.Enqueue(domain.KindSendRecipientNotification, domain.NotificationPayload{}, domain.PriorityMedium, nil)
	for i := 0; i < domain.DefaultMaxAttempts; i++ {
		q.DispatchOnce(context.Background())
		q.Drain()
		clock.Advance(10 * time.Minute)
	}

	ok := &recordingHandler{}
	q2 := New(ok, Options{Now: clock.Now}, zap.NewNop(), hooks)
	q2.Enqueue(domain.KindSendRecipientNotification, domain.NotificationPayload{}, domain.PriorityMedium, nil)
	q2.DispatchOnce(context.Background())
	q2.Drain()

	mu.Lock()
	defer mu.Unlock()
	if failed != 1 {
		t.Errorf("OnFailed fired %d times, want 1", failed)
	}
	if completed != 1 {
		t.Errorf("OnCompleted fired %d times, want 1", completed)
	}
}
