package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/crawltest-service/internal/entity"
)

// TestCaseRepoImpl implements repository.TestCaseRepository on PostgreSQL.
type TestCaseRepoImpl struct {
	db DBPool
}

func NewTestCaseRepo(db DBPool) *TestCaseRepoImpl {
	return &TestCaseRepoImpl{db: db}
}

func (r *TestCaseRepoImpl) Create(ctx context.Context, tc *entity.TestCase) error {
	steps, err := json.Marshal(tc.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	tags := tc.Tags
	if tags == nil {
		tags = []string{}
	}
	query := `
		INSERT INTO test_cases (id, website_id, page_id, name, description, steps, priority, tags, source, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err = r.db.Exec(ctx, query,
		tc.ID, tc.WebsiteID, nullable(tc.PageID), tc.Name, tc.Description, steps,
		string(tc.Priority), tags, string(tc.Source), string(tc.Status), tc.CreatedAt,
	)
	return err
}

func (r *TestCaseRepoImpl) FindByID(ctx context.Context, id string) (*entity.TestCase, error) {
	query := `
		SELECT id, website_id, COALESCE(page_id, ''), name, description, steps, priority, tags, source, status, created_at
		FROM test_cases
		WHERE id = $1;
	`
	var (
		tc                       entity.TestCase
		steps                    []byte
		priority, source, status string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&tc.ID, &tc.WebsiteID, &tc.PageID, &tc.Name, &tc.Description, &steps,
		&priority, &tc.Tags, &source, &status, &tc.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(steps, &tc.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps of test case %s: %w", id, err)
	}
	tc.Priority, tc.Source, tc.Status = entity.Priority(priority), entity.Source(source), entity.TestCaseStatus(status)
	return &tc, nil
}
