// Package settings holds the admin-configurable notification knobs.
// Invalid values are rejected synchronously at update time, never clamped.
package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/talentdesk/recruiter-notify/internal/domain"
)

const (
	MinThreshold = 1
	MaxThreshold = 50

	DefaultThreshold = 5
	DefaultSendTime  = "09:00"
)

// Snapshot is the full settings state, as served by the ops API.
type Snapshot struct {
	FrequencyThreshold   int    `json:"frequency_threshold"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	SendTime             string `json:"send_time"`
}

// Store is the read/write settings contract. The evaluator consumes only
// the read side (eligibility.SettingsProvider).
type Store interface {
	FrequencyThreshold(ctx context.Context) (int, error)
	NotificationsEnabled(ctx context.Context) (bool, error)
	SendTime(ctx context.Context) (string, error)

	SetFrequencyThreshold(ctx context.Context, n int) error
	SetNotificationsEnabled(ctx context.Context, enabled bool) error
	SetSendTime(ctx context.Context, hhmm string) error

	Get(ctx context.Context) (Snapshot, error)
}

// ValidateThreshold enforces the 1–50 range.
func ValidateThreshold(n int) error {
	if n < MinThreshold || n > MaxThreshold {
		return fmt.Errorf("%w: got %d", domain.ErrThresholdOutOfRange, n)
	}
	return nil
}

// ValidateSendTime enforces a 24-hour HH:MM string.
func ValidateSendTime(hhmm string) error {
	if _, err := time.Parse("15:04", hhmm); err != nil {
		return fmt.Errorf("%w: got %q", domain.ErrInvalidSendTime, hhmm)
	}
	return nil
}

// MemoryStore is a mutex-guarded in-memory settings store, used in tests and
// in deployments where settings are supplied at boot and not persisted.
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshot: Snapshot{
		FrequencyThreshold:   DefaultThreshold,
		NotificationsEnabled: true,
		SendTime:             DefaultSendTime,
	}}
}

func (s *MemoryStore) FrequencyThreshold(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.FrequencyThreshold, nil
}

func (s *MemoryStore) NotificationsEnabled(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.NotificationsEnabled, nil
}

func (s *MemoryStore) SendTime(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.SendTime, nil
}

func (s *MemoryStore) SetFrequencyThreshold(_ context.Context, n int) error {
	if err := ValidateThreshold(n); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.FrequencyThreshold = n
	return nil
}

func (s *MemoryStore) SetNotificationsEnabled(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.NotificationsEnabled = enabled
	return nil
}

func (s *MemoryStore) SetSendTime(_ context.Context, hhmm string) error {
	if err := ValidateSendTime(hhmm); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.SendTime = hhmm
	return nil
}

func (s *MemoryStore) Get(context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, nil
}

var _ Store = (*MemoryStore)(nil)
