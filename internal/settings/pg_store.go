package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore persists settings in the single-row notification_settings table so
// admin changes survive restarts and are shared by every reader.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Get(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT frequency_threshold, notifications_enabled, send_time
		FROM notification_settings WHERE id = 1`).
		Scan(&snap.FrequencyThreshold, &snap.NotificationsEnabled, &snap.SendTime)
	if errors.Is(err, pgx.ErrNoRows) {
		// Row is seeded by the migration; absence means defaults.
		return Snapshot{
			FrequencyThreshold:   DefaultThreshold,
			NotificationsEnabled: true,
			SendTime:             DefaultSendTime,
		}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read settings: %w", err)
	}
	return snap, nil
}

func (s *PgStore) FrequencyThreshold(ctx context.Context) (int, error) {
	snap, err := s.Get(ctx)
	return snap.FrequencyThreshold, err
}

func (s *PgStore) NotificationsEnabled(ctx context.Context) (bool, error) {
	snap, err := s.Get(ctx)
	return snap.NotificationsEnabled, err
}

func (s *PgStore) SendTime(ctx context.Context) (string, error) {
	snap, err := s.Get(ctx)
	return snap.SendTime, err
}

func (s *PgStore) SetFrequencyThreshold(ctx context.Context, n int) error {
	if err := ValidateThreshold(n); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_settings
		SET frequency_threshold = $1, updated_at = NOW() WHERE id = 1`, n)
	return err
}

func (s *PgStore) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_settings
		SET notifications_enabled = $1, updated_at = NOW() WHERE id = 1`, enabled)
	return err
}

func (s *PgStore) SetSendTime(ctx context.Context, hhmm string) error {
	if err := ValidateSendTime(hhmm); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_settings
		SET send_time = $1, updated_at = NOW() WHERE id = 1`, hhmm)
	return err
}

var _ Store = (*PgStore)(nil)
