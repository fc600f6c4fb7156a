package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
)

const scheduleColumns = `id, name, cron_expr, test_case_ids, is_active, last_run`

// ScheduleRepoImpl implements repository.ScheduleRepository on PostgreSQL.
type ScheduleRepoImpl struct {
	db DBPool
}

func NewScheduleRepo(db DBPool) *ScheduleRepoImpl {
	return &ScheduleRepoImpl{db: db}
}

func scanSchedule(row pgx.Row) (*entity.Schedule, error) {
	var s entity.Schedule
	if err := row.Scan(&s.ID, &s.Name, &s.CronExpr, &s.TestCaseIDs, &s.IsActive, &s.LastRun); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ScheduleRepoImpl) FindByID(ctx context.Context, id string) (*entity.Schedule, error) {
	s, err := scanSchedule(r.db.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1;`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r *ScheduleRepoImpl) ListActive(ctx context.Context) ([]*entity.Schedule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE is_active ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ScheduleRepoImpl) MarkRun(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE schedules SET last_run = $2 WHERE id = $1;`, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
