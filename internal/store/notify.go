package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsdeck/deskflow/internal/notify"
	"github.com/opsdeck/deskflow/internal/workflow"
)

// InsertNotificationJob appends a job to the notification outbox.
// The queue's drain loop calls this; delivery workers outside this repo
// claim jobs by status.
func (s *Store) InsertNotificationJob(ctx context.Context, job notify.Job) error {
	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_jobs (id, job_type, payload, status, created_at)
		VALUES (?, ?, ?, 'pending', ?)
		ON CONFLICT(id) DO NOTHING
	`, job.ID, job.Type, string(payloadJSON), s.timestamp())
	if err != nil {
		return fmt.Errorf("insert notification job %s: %w", job.ID, err)
	}

	return nil
}

// ListNotificationJobs returns outbox jobs oldest first, optionally
// filtered by status. Empty status means all jobs.
func (s *Store) ListNotificationJobs(ctx context.Context, status string) ([]notify.Job, error) {
	query := `
		SELECT id, job_type, payload
		FROM notification_jobs
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notification jobs: %w", err)
	}
	defer rows.Close()

	var jobs []notify.Job
	for rows.Next() {
		var job notify.Job
		var payloadJSON string
		if err := rows.Scan(&job.ID, &job.Type, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan notification job: %w", err)
		}

		var payload workflow.Params
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload for job %s: %w", job.ID, err)
		}
		job.Payload = payload

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification jobs: %w", err)
	}

	if jobs == nil {
		jobs = []notify.Job{}
	}

	return jobs, nil
}
