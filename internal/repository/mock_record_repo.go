package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/talentdesk/recruiter-notify/internal/domain"
)

// MockRecordRepository is a hand-written, in-memory implementation of
// NotificationRecordRepository used in unit tests. It mirrors the merge and
// backoff semantics of the PostgreSQL implementation so the eligibility and
// processor tests exercise realistic behaviour without a database.
type MockRecordRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.NotificationRecord
	seq     int

	// Optional error overrides — set in tests to simulate failure paths.
	FindErr          error
	CreateOrMergeErr error
	MarkSentErr      error
	MarkFailedErr    error

	// Now is the clock used for day bucketing; defaults to time.Now.
	Now func() time.Time
}

func NewMockRecordRepository() *MockRecordRepository {
	return &MockRecordRepository{
		records: make(map[string]*domain.NotificationRecord),
		Now:     time.Now,
	}
}

func recordKey(recipientID *string, emailType domain.EmailType, day time.Time) string {
	rid := ""
	if recipientID != nil {
		rid = *recipientID
	}
	return rid + "|" + string(emailType) + "|" + day.Format("2006-01-02")
}

func (m *MockRecordRepository) FindTodayRecord(_ context.Context, recipientID *string, emailType domain.EmailType) (*domain.NotificationRecord, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	day, _ := domain.DayBucket(m.Now())
	if rec, ok := m.records[recordKey(recipientID, emailType, day)]; ok {
		clone := *rec
		return &clone, nil
	}
	return nil, domain.ErrRecordNotFound
}

func (m *MockRecordRepository) CreateOrMerge(_ context.Context, recipientID *string, emailType domain.EmailType, jobCount int, jobIDs []string, recipientCount int) (*domain.NotificationRecord, error) {
	if m.CreateOrMergeErr != nil {
		return nil, m.CreateOrMergeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	day, _ := domain.DayBucket(now)
	key := recordKey(recipientID, emailType, day)

	if existing, ok := m.records[key]; ok {
		existing.JobIDs = domain.MergeJobIDs(existing.JobIDs, jobIDs)
		existing.JobCount = jobCount
		existing.RecipientCount = recipientCount
		existing.UpdatedAt = now
		clone := *existing
		return &clone, nil
	}

	m.seq++
	rec := &domain.NotificationRecord{
		ID:             fmt.Sprintf("rec-%d", m.seq),
		RecipientID:    recipientID,
		EmailType:      emailType,
		SentDate:       day,
		JobCount:       jobCount,
		JobIDs:         domain.MergeJobIDs(nil, jobIDs),
		RecipientCount: recipientCount,
		Status:         domain.RecordPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.records[key] = rec
	clone := *rec
	return &clone, nil
}

func (m *MockRecordRepository) MarkSent(_ context.Context, id string) error {
	if m.MarkSentErr != nil {
		return m.MarkSentErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.byID(id)
	if rec == nil {
		return domain.ErrRecordNotFound
	}
	now := m.Now()
	rec.EmailSent = true
	rec.Status = domain.RecordSent
	rec.SentAt = &now
	rec.ErrorMessage = nil
	rec.NextRetryAt = nil
	rec.UpdatedAt = now
	return nil
}

func (m *MockRecordRepository) MarkFailed(_ context.Context, id string, errMsg string) error {
	if m.MarkFailedErr != nil {
		return m.MarkFailedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.byID(id)
	if rec == nil {
		return domain.ErrRecordNotFound
	}
	now := m.Now()
	rec.Status = domain.RecordFailed
	rec.RetryCount++
	rec.ErrorMessage = &errMsg
	next := now.Add(domain.NextRetryDelay(rec.RetryCount))
	rec.NextRetryAt = &next
	rec.UpdatedAt = now
	return nil
}

func (m *MockRecordRepository) FindDueRetries(_ context.Context, retryCap int) ([]*domain.NotificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.Now()
	var due []*domain.NotificationRecord
	for _, rec := range m.records {
		if rec.Status == domain.RecordFailed && rec.RetryCount < retryCap &&
			rec.NextRetryAt != nil && !rec.NextRetryAt.After(now) {
			clone := *rec
			due = append(due, &clone)
		}
	}
	return due, nil
}

// All returns a snapshot of every stored record, for test assertions.
func (m *MockRecordRepository) All() []*domain.NotificationRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.NotificationRecord, 0, len(m.records))
	for _, rec := range m.records {
		clone := *rec
		out = append(out, &clone)
	}
	return out
}

// ForceNextRetryAt rewinds a record's retry time so sweep tests do not sleep.
func (m *MockRecordRepository) ForceNextRetryAt(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec := m.byID(id); rec != nil {
		rec.NextRetryAt = &at
	}
}

func (m *MockRecordRepository) byID(id string) *domain.NotificationRecord {
	for _, rec := range m.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}
