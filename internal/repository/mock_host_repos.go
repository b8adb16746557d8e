package repository

import (
	"context"
	"sync"

	"github.com/talentdesk/recruiter-notify/internal/domain"
)

// MockJobRepository serves fixed job data in unit tests.
type MockJobRepository struct {
	mu   sync.RWMutex
	jobs []domain.JobSummary

	CountErr error
	ListErr  error
	FindErr  error
}

func NewMockJobRepository(jobs ...domain.JobSummary) *MockJobRepository {
	return &MockJobRepository{jobs: jobs}
}

// SetJobs replaces the set of jobs considered created today and active.
func (m *MockJobRepository) SetJobs(jobs ...domain.JobSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = jobs
}

func (m *MockJobRepository) CountActiveCreatedToday(_ context.Context) (int, error) {
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs), nil
}

func (m *MockJobRepository) ListActiveCreatedToday(_ context.Context) ([]string, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, len(m.jobs))
	for i, j := range m.jobs {
		ids[i] = j.ID
	}
	return ids, nil
}

func (m *MockJobRepository) FindByIDs(_ context.Context, ids []string) ([]domain.JobSummary, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []domain.JobSummary
	for _, j := range m.jobs {
		if _, ok := want[j.ID]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

// MockRecruiterRepository serves fixed recruiter data in unit tests.
type MockRecruiterRepository struct {
	mu         sync.RWMutex
	active     []domain.Recruiter
	bookmarks  map[string][]domain.Recruiter // jobID -> recruiters
	uploaders  map[string][]domain.Recruiter // jobID -> recruiters

	ListErr error
}

func NewMockRecruiterRepository(active ...domain.Recruiter) *MockRecruiterRepository {
	return &MockRecruiterRepository{
		active:    active,
		bookmarks: make(map[string][]domain.Recruiter),
		uploaders: make(map[string][]domain.Recruiter),
	}
}

func (m *MockRecruiterRepository) SetBookmarkers(jobID string, recruiters ...domain.Recruiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookmarks[jobID] = recruiters
}

func (m *MockRecruiterRepository) SetCandidateUploaders(jobID string, recruiters ...domain.Recruiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaders[jobID] = recruiters
}

func (m *MockRecruiterRepository) FindByID(_ context.Context, id string) (*domain.Recruiter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.active {
		if r.ID == id {
			clone := r
			return &clone, nil
		}
	}
	return nil, domain.ErrRecruiterNotFound
}

func (m *MockRecruiterRepository) ListActiveRecruiters(_ context.Context) ([]domain.Recruiter, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Recruiter, len(m.active))
	copy(out, m.active)
	return out, nil
}

func (m *MockRecruiterRepository) FindBookmarkersOf(_ context.Context, jobID string) ([]domain.Recruiter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Recruiter, len(m.bookmarks[jobID]))
	copy(out, m.bookmarks[jobID])
	return out, nil
}

func (m *MockRecruiterRepository) FindCandidateUploadersOf(_ context.Context, jobID string) ([]domain.Recruiter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Recruiter, len(m.uploaders[jobID]))
	copy(out, m.uploaders[jobID])
	return out, nil
}
