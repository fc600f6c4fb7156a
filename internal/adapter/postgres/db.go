package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// DBPool abstracts pgxpool.Pool so the repositories can run against pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool connects to PostgreSQL and verifies the connection.
func NewPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db DBPool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// allowedFrom lists the stored statuses a conditional update may move away from.
func allowedFrom(next entity.Status) []string {
	prev := entity.Predecessors(next)
	out := make([]string, len(prev))
	for i, s := range prev {
		out[i] = string(s)
	}
	sort.Strings(out)
	return out
}

// transitionMiss explains a conditional UPDATE that touched no row.
func transitionMiss(ctx context.Context, db DBPool, existsSQL, id string) error {
	var exists bool
	if err := db.QueryRow(ctx, existsSQL, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrInvalidTransition
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
