package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talentdesk/recruiter-notify/internal/domain"
)

// Read-only repositories over the host application's jobs, recruiters,
// job_bookmarks and candidates tables. The pipeline never writes to them.

type pgJobRepository struct {
	pool *pgxpool.Pool
}

func NewPgJobRepository(pool *pgxpool.Pool) JobRepository {
	return &pgJobRepository{pool: pool}
}

func (r *pgJobRepository) CountActiveCreatedToday(ctx context.Context) (int, error) {
	start, end := domain.DayBucket(time.Now())
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE status = 'ACTIVE' AND created_at >= $1 AND created_at < $2`,
		start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return count, nil
}

func (r *pgJobRepository) ListActiveCreatedToday(ctx context.Context) ([]string, error) {
	start, end := domain.DayBucket(time.Now())
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM jobs
		WHERE status = 'ACTIVE' AND created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *pgJobRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.JobSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, location, commission, salary
		FROM jobs WHERE id = ANY($1)
		ORDER BY created_at ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("find jobs by ids: %w", err)
	}
	defer rows.Close()

	var jobs []domain.JobSummary
	for rows.Next() {
		var j domain.JobSummary
		if err := rows.Scan(&j.ID, &j.Title, &j.Location, &j.Commission, &j.Salary); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type pgRecruiterRepository struct {
	pool *pgxpool.Pool
}

func NewPgRecruiterRepository(pool *pgxpool.Pool) RecruiterRepository {
	return &pgRecruiterRepository{pool: pool}
}

func (r *pgRecruiterRepository) FindByID(ctx context.Context, id string) (*domain.Recruiter, error) {
	var rec domain.Recruiter
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email FROM recruiters WHERE id = $1`, id).
		Scan(&rec.ID, &rec.Name, &rec.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRecruiterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find recruiter: %w", err)
	}
	return &rec, nil
}

func (r *pgRecruiterRepository) ListActiveRecruiters(ctx context.Context) ([]domain.Recruiter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email FROM recruiters
		WHERE status = 'active'
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active recruiters: %w", err)
	}
	defer rows.Close()
	return scanRecruiters(rows)
}

func (r *pgRecruiterRepository) FindBookmarkersOf(ctx context.Context, jobID string) ([]domain.Recruiter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT r.id, r.name, r.email
		FROM recruiters r
		JOIN job_bookmarks b ON b.recruiter_id = r.id
		WHERE b.job_id = $1 AND b.active AND r.status = 'active'`, jobID)
	if err != nil {
		return nil, fmt.Errorf("find bookmarkers: %w", err)
	}
	defer rows.Close()
	return scanRecruiters(rows)
}

func (r *pgRecruiterRepository) FindCandidateUploadersOf(ctx context.Context, jobID string) ([]domain.Recruiter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT r.id, r.name, r.email
		FROM recruiters r
		JOIN candidates c ON c.recruiter_id = r.id
		WHERE c.job_id = $1 AND r.status = 'active'`, jobID)
	if err != nil {
		return nil, fmt.Errorf("find candidate uploaders: %w", err)
	}
	defer rows.Close()
	return scanRecruiters(rows)
}

func scanRecruiters(rows pgx.Rows) ([]domain.Recruiter, error) {
	var result []domain.Recruiter
	for rows.Next() {
		var rec domain.Recruiter
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Address); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
