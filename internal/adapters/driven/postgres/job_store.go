package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Ensure JobStore implements the port
var _ driven.JobStore = (*JobStore)(nil)

// JobStore implements driven.JobStore backed by PostgreSQL. The jobs table
// doubles as the work queue: Dequeue claims rows with FOR UPDATE SKIP LOCKED
// so concurrent workers never double-claim, and the unique idempotency key
// makes CreateIdempotent safe under concurrent duplicate triggers.
type JobStore struct {
	db *DB
}

// NewJobStore creates a new JobStore
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, type, organization_id, agent_id, source_id, status,
	idempotency_key, attempt_count, max_attempts, progress, error_history,
	force, created_at, updated_at, scheduled_for, started_at, completed_at,
	last_heartbeat`

func (s *JobStore) CreateIdempotent(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return nil, false, fmt.Errorf("marshal progress: %w", err)
	}
	history, err := marshalHistory(job.ErrorHistory)
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO jobs (
			id, type, organization_id, agent_id, source_id, status,
			idempotency_key, attempt_count, max_attempts, progress,
			error_history, force, created_at, updated_at, scheduled_for,
			started_at, completed_at, last_heartbeat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Type,
		job.OrganizationID,
		job.AgentID,
		job.SourceID,
		job.Status,
		job.IdempotencyKey,
		job.AttemptCount,
		job.MaxAttempts,
		progress,
		history,
		job.Force,
		job.CreatedAt,
		job.UpdatedAt,
		job.ScheduledFor,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		nullTime(job.LastHeartbeat),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 1 {
		cp := *job
		return &cp, true, nil
	}

	// Conflict: fetch the winner
	existing, err := s.getByKey(ctx, job.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(s.db.QueryRowContext(ctx, query, id))
}

func (s *JobStore) getByKey(ctx context.Context, key string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE idempotency_key = $1`
	return scanJob(s.db.QueryRowContext(ctx, query, key))
}

func (s *JobStore) Update(ctx context.Context, job *domain.Job) error {
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	history, err := marshalHistory(job.ErrorHistory)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs SET
			status = $1, attempt_count = $2, progress = $3, error_history = $4,
			updated_at = $5, scheduled_for = $6, started_at = $7,
			completed_at = $8, last_heartbeat = $9
		WHERE id = $10
	`
	result, err := s.db.ExecContext(ctx, query,
		job.Status,
		job.AttemptCount,
		progress,
		history,
		job.UpdatedAt,
		job.ScheduledFor,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		nullTime(job.LastHeartbeat),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Dequeue atomically claims the next ready pending job with SKIP LOCKED and
// moves it to running. Returns nil when nothing is ready.
func (s *JobStore) Dequeue(ctx context.Context) (*domain.Job, error) {
	return s.dequeue(ctx, 0)
}

// DequeueWithTimeout is Dequeue that waits up to timeout seconds before
// giving up.
func (s *JobStore) DequeueWithTimeout(ctx context.Context, timeoutSeconds int) (*domain.Job, error) {
	return s.dequeue(ctx, timeoutSeconds)
}

func (s *JobStore) dequeue(ctx context.Context, timeoutSeconds int) (*domain.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	selectQuery := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND scheduled_for <= NOW()
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`
	job, err := scanJob(tx.QueryRowContext(ctx, selectQuery, domain.JobStatusPending))
	if err == domain.ErrNotFound {
		_ = tx.Rollback()
		if timeoutSeconds > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(timeoutSeconds) * time.Second):
				return s.dequeue(ctx, 0)
			}
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updateQuery := `
		UPDATE jobs
		SET status = $1, started_at = $2, last_heartbeat = $2, updated_at = $2,
			attempt_count = attempt_count + 1
		WHERE id = $3
	`
	if _, err := tx.ExecContext(ctx, updateQuery, domain.JobStatusRunning, now, job.ID); err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	job.Status = domain.JobStatusRunning
	job.StartedAt = &now
	job.LastHeartbeat = &now
	job.UpdatedAt = now
	job.AttemptCount++
	return job, nil
}

func (s *JobStore) ListStuck(ctx context.Context, threshold time.Duration) ([]*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND last_heartbeat IS NOT NULL AND last_heartbeat < $2
		ORDER BY last_heartbeat ASC
	`
	cutoff := time.Now().Add(-threshold)
	rows, err := s.db.QueryContext(ctx, query, domain.JobStatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *JobStore) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *JobStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func collectJobs(rows *sql.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var progress, history []byte
	var startedAt, completedAt, lastHeartbeat sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.Type,
		&job.OrganizationID,
		&job.AgentID,
		&job.SourceID,
		&job.Status,
		&job.IdempotencyKey,
		&job.AttemptCount,
		&job.MaxAttempts,
		&progress,
		&history,
		&job.Force,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.ScheduledFor,
		&startedAt,
		&completedAt,
		&lastHeartbeat,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &job.Progress); err != nil {
			return nil, fmt.Errorf("unmarshal progress: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &job.ErrorHistory); err != nil {
			return nil, fmt.Errorf("unmarshal error history: %w", err)
		}
	}
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	job.LastHeartbeat = timePtr(lastHeartbeat)
	return &job, nil
}

func marshalHistory(history []domain.JobError) ([]byte, error) {
	if history == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("marshal error history: %w", err)
	}
	return data, nil
}
