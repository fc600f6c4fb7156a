package postgres

import (
	"context"
	"time"

	"github.com/user/crawltest-service/internal/entity"
)

const jobExistsSQL = `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1);`

// JobRepoImpl implements repository.JobRepository on PostgreSQL.
type JobRepoImpl struct {
	db DBPool
}

func NewJobRepo(db DBPool) *JobRepoImpl {
	return &JobRepoImpl{db: db}
}

func (r *JobRepoImpl) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO jobs (id, kind, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := r.db.Exec(ctx, query, job.ID, string(job.Kind), []byte(job.Payload), string(job.Status), job.CreatedAt)
	return err
}

func (r *JobRepoImpl) FindByID(ctx context.Context, id string) (*entity.Job, error) {
	query := `
		SELECT id, kind, payload, status, error, created_at, started_at, finished_at
		FROM jobs
		WHERE id = $1;
	`
	var (
		j            entity.Job
		kind, status string
		payload      []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(&j.ID, &kind, &payload, &status, &j.Error, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		return nil, notFound(err)
	}
	j.Kind, j.Status, j.Payload = entity.JobKind(kind), entity.Status(status), payload
	return &j, nil
}

// Transition sets started_at when the job starts and finished_at when it ends.
func (r *JobRepoImpl) Transition(ctx context.Context, id string, next entity.Status, errMsg string) error {
	var started, finished *time.Time
	now := time.Now().UTC()
	if next == entity.StatusRunning {
		started = &now
	}
	if next.IsTerminal() {
		finished = &now
	}

	query := `
		UPDATE jobs
		SET status = $2, error = $3, started_at = COALESCE($4, started_at), finished_at = COALESCE($5, finished_at)
		WHERE id = $1 AND status = ANY($6);
	`
	tag, err := r.db.Exec(ctx, query, id, string(next), errMsg, started, finished, allowedFrom(next))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return transitionMiss(ctx, r.db, jobExistsSQL, id)
	}
	return nil
}
