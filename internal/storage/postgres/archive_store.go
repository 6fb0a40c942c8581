// Package postgres provides the Postgres-backed job archive.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailsift/mailsift/internal/store"
)

const defaultListLimit = 100

// ArchiveStoreConfig controls the connection pool used for archive rows.
type ArchiveStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// ArchiveStore implements store.ArchiveRepository on Postgres.
type ArchiveStore struct {
	pool querier
}

// NewArchiveStore connects a pool using the provided config.
func NewArchiveStore(ctx context.Context, cfg ArchiveStoreConfig) (*ArchiveStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("archive.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ArchiveStore{pool: pool}, nil
}

// NewArchiveStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewArchiveStoreWithPool(pool querier) (*ArchiveStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ArchiveStore{pool: pool}, nil
}

// Close closes the underlying pool.
func (s *ArchiveStore) Close() {
	s.pool.Close()
}

// ArchiveJob inserts or replaces the terminal record for job.ID.
func (s *ArchiveStore) ArchiveJob(ctx context.Context, job store.ArchivedJob) error {
	results, err := json.Marshal(job.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	query := `
		INSERT INTO job_archive (id, status, done, total, results, error_text, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    done = EXCLUDED.done,
		    total = EXCLUDED.total,
		    results = EXCLUDED.results,
		    error_text = EXCLUDED.error_text,
		    archived_at = EXCLUDED.archived_at;
	`
	_, err = s.pool.Exec(ctx, query,
		job.ID, job.Status, job.Done, job.Total, results, job.ErrorText, job.ArchivedAt)
	if err != nil {
		return fmt.Errorf("archive job: %w", err)
	}
	return nil
}

// GetArchivedJob returns store.ErrNotFound when the row does not exist.
func (s *ArchiveStore) GetArchivedJob(ctx context.Context, id uuid.UUID) (store.ArchivedJob, error) {
	query := `
		SELECT id, status, done, total, results, error_text, archived_at
		FROM job_archive
		WHERE id = $1;
	`
	row := s.pool.QueryRow(ctx, query, id)
	job, err := scanArchivedJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ArchivedJob{}, store.ErrNotFound
		}
		return store.ArchivedJob{}, fmt.Errorf("get archived job: %w", err)
	}
	return job, nil
}

// ListArchivedJobs returns the most recent rows, newest first.
func (s *ArchiveStore) ListArchivedJobs(ctx context.Context, limit int) ([]store.ArchivedJob, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT id, status, done, total, results, error_text, archived_at
		FROM job_archive
		ORDER BY archived_at DESC
		LIMIT $1;
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived jobs: %w", err)
	}
	defer rows.Close()

	var jobs []store.ArchivedJob
	for rows.Next() {
		job, err := scanArchivedJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}
	return jobs, nil
}

func scanArchivedJob(row pgx.Row) (store.ArchivedJob, error) {
	var (
		job     store.ArchivedJob
		results []byte
	)
	err := row.Scan(&job.ID, &job.Status, &job.Done, &job.Total, &results, &job.ErrorText, &job.ArchivedAt)
	if err != nil {
		return store.ArchivedJob{}, err
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &job.Results); err != nil {
			return store.ArchivedJob{}, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	return job, nil
}
