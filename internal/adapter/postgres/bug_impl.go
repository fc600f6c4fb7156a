package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/crawltest-service/internal/entity"
)

// BugRepoImpl implements repository.BugRepository. bug_records.test_run_id is
// unique, which keeps one bug per failed run.
type BugRepoImpl struct {
	db DBPool
}

func NewBugRepo(db DBPool) *BugRepoImpl {
	return &BugRepoImpl{db: db}
}

func (r *BugRepoImpl) Create(ctx context.Context, bug *entity.BugRecord) (bool, error) {
	repro, err := json.Marshal(orEmpty(bug.ReproductionSteps))
	if err != nil {
		return false, err
	}
	logs, err := json.Marshal(orEmpty(bug.Logs))
	if err != nil {
		return false, err
	}
	shots, err := json.Marshal(orEmpty(bug.Screenshots))
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO bug_records (id, test_run_id, test_case_id, title, description, severity, ai_summary, root_cause,
			reproduction_steps, logs, screenshots, reported_by, fingerprint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (test_run_id) DO NOTHING;
	`
	tag, err := r.db.Exec(ctx, query,
		bug.ID, bug.RelatedTestRunID, bug.TestCaseID, bug.Title, bug.Description, string(bug.Severity),
		bug.AISummary, bug.RootCause, repro, logs, shots, bug.ReportedBy, bug.Fingerprint, bug.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *BugRepoImpl) FindByTestRun(ctx context.Context, testRunID string) (*entity.BugRecord, error) {
	query := `
		SELECT id, test_run_id, test_case_id, title, description, severity, ai_summary, root_cause,
			reproduction_steps, logs, screenshots, reported_by, fingerprint, created_at
		FROM bug_records
		WHERE test_run_id = $1;
	`
	var (
		b                  entity.BugRecord
		severity           string
		repro, logs, shots []byte
	)
	err := r.db.QueryRow(ctx, query, testRunID).Scan(
		&b.ID, &b.RelatedTestRunID, &b.TestCaseID, &b.Title, &b.Description, &severity, &b.AISummary, &b.RootCause,
		&repro, &logs, &shots, &b.ReportedBy, &b.Fingerprint, &b.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	b.Severity = entity.Severity(severity)
	for _, col := range []struct {
		raw []byte
		dst *[]string
	}{{repro, &b.ReproductionSteps}, {logs, &b.Logs}, {shots, &b.Screenshots}} {
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("failed to decode bug %s: %w", b.ID, err)
		}
	}
	return &b, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
