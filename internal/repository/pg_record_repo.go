package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talentdesk/recruiter-notify/internal/domain"
)

const pgUniqueViolation = "23505"

type pgRecordRepository struct {
	pool *pgxpool.Pool
}

// NewPgRecordRepository returns a NotificationRecordRepository backed by PostgreSQL.
func NewPgRecordRepository(pool *pgxpool.Pool) NotificationRecordRepository {
	return &pgRecordRepository{pool: pool}
}

const recordColumns = `
	id, recipient_id, email_type, sent_date, job_count, job_ids,
	recipient_count, email_sent, status, sent_at, retry_count,
	next_retry_at, error_message, created_at, updated_at`

func (r *pgRecordRepository) FindTodayRecord(ctx context.Context, recipientID *string, emailType domain.EmailType) (*domain.NotificationRecord, error) {
	day, _ := domain.DayBucket(time.Now())
	row := r.pool.QueryRow(ctx, `
		SELECT`+recordColumns+`
		FROM notification_records
		WHERE COALESCE(recipient_id, '') = COALESCE($1, '')
		  AND email_type = $2
		  AND sent_date = $3`,
		recipientID, emailType, day)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	return rec, err
}

// CreateOrMerge runs inside a transaction with a row lock so two concurrent
// enqueues for the same recipient fold into one record instead of racing.
func (r *pgRecordRepository) CreateOrMerge(ctx context.Context, recipientID *string, emailType domain.EmailType, jobCount int, jobIDs []string, recipientCount int) (*domain.NotificationRecord, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	day, _ := domain.DayBucket(time.Now())

	row := tx.QueryRow(ctx, `
		SELECT`+recordColumns+`
		FROM notification_records
		WHERE COALESCE(recipient_id, '') = COALESCE($1, '')
		  AND email_type = $2
		  AND sent_date = $3
		FOR UPDATE`,
		recipientID, emailType, day)

	existing, err := scanRecord(row)
	switch {
	case err == nil:
		existing.JobIDs = domain.MergeJobIDs(existing.JobIDs, jobIDs)
		existing.JobCount = jobCount
		existing.RecipientCount = recipientCount
		existing.UpdatedAt = time.Now()

		_, err = tx.Exec(ctx, `
			UPDATE notification_records
			SET job_count = $1, job_ids = $2, recipient_count = $3, updated_at = $4
			WHERE id = $5`,
			existing.JobCount, existing.JobIDs, existing.RecipientCount, existing.UpdatedAt, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("merge record: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit merge: %w", err)
		}
		return existing, nil

	case errors.Is(err, pgx.ErrNoRows):
		now := time.Now()
		rec := &domain.NotificationRecord{
			ID:             uuid.New().String(),
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
		_, err = tx.Exec(ctx, `
			INSERT INTO notification_records
				(id, recipient_id, email_type, sent_date, job_count, job_ids,
				 recipient_count, email_sent, status, retry_count, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,false,$8,0,$9,$10)`,
			rec.ID, rec.RecipientID, rec.EmailType, rec.SentDate, rec.JobCount,
			rec.JobIDs, rec.RecipientCount, rec.Status, rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return nil, domain.ErrDuplicateRecord
			}
			return nil, fmt.Errorf("insert record: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit insert: %w", err)
		}
		return rec, nil

	default:
		return nil, fmt.Errorf("find record for merge: %w", err)
	}
}

func (r *pgRecordRepository) MarkSent(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_records
		SET email_sent = true, status = 'sent', sent_at = $1,
		    error_message = NULL, next_retry_at = NULL, updated_at = $1
		WHERE id = $2`, time.Now(), id)
	return err
}

func (r *pgRecordRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var retryCount int
	err = tx.QueryRow(ctx, `
		SELECT retry_count FROM notification_records WHERE id = $1 FOR UPDATE`, id).Scan(&retryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("lock record: %w", err)
	}

	retryCount++
	nextRetry := time.Now().Add(domain.NextRetryDelay(retryCount))

	_, err = tx.Exec(ctx, `
		UPDATE notification_records
		SET status = 'failed', retry_count = $1, next_retry_at = $2,
		    error_message = $3, updated_at = $4
		WHERE id = $5`,
		retryCount, nextRetry, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *pgRecordRepository) FindDueRetries(ctx context.Context, retryCap int) ([]*domain.NotificationRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+recordColumns+`
		FROM notification_records
		WHERE status = 'failed'
		  AND retry_count < $1
		  AND next_retry_at <= NOW()
		LIMIT 200`, retryCap)
	if err != nil {
		return nil, fmt.Errorf("find due retries: %w", err)
	}
	defer rows.Close()

	var result []*domain.NotificationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// scanRecord reads a single record row from any pgx row type.
func scanRecord(row pgx.Row) (*domain.NotificationRecord, error) {
	var rec domain.NotificationRecord
	err := row.Scan(
		&rec.ID, &rec.RecipientID, &rec.EmailType, &rec.SentDate,
		&rec.JobCount, &rec.JobIDs, &rec.RecipientCount, &rec.EmailSent,
		&rec.Status, &rec.SentAt, &rec.RetryCount, &rec.NextRetryAt,
		&rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
