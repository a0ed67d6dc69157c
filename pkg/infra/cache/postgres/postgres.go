// Package postgres persists cached repository results in PostgreSQL
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// Store keeps one row per repository
type Store struct {
	db *sql.DB
}

var _ interfaces.ResultStore = (*Store)(nil)

// New creates a store on an open database
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewFromDSN opens a connection and checks it
func NewFromDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to connect to database")
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the table if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS repository_results (
			repo_key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			status TEXT NOT NULL,
			result JSONB NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return goerr.Wrap(err, "failed to create schema")
	}
	return nil
}

// Save upserts result by its owner/name key
func (s *Store) Save(ctx context.Context, result *model.RepositoryResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal result", goerr.V("repo", result.Ref().Key()))
	}

	query := `
		INSERT INTO repository_results (repo_key, owner, repo, status, result, fetched_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (repo_key) DO UPDATE SET
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = NOW()
	`

	_, err = s.db.ExecContext(ctx, query,
		result.Ref().Key(),
		result.Owner,
		result.Repo,
		string(result.Status),
		raw,
		result.FetchedAt,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to store result", goerr.V("repo", result.Ref().Key()))
	}

	return nil
}

// LoadAll returns every stored result
func (s *Store) LoadAll(ctx context.Context) ([]*model.RepositoryResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT repo_key, result FROM repository_results ORDER BY repo_key`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query results")
	}
	defer rows.Close()

	var results []*model.RepositoryResult
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, goerr.Wrap(err, "failed to scan result")
		}

		var result model.RepositoryResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal result", goerr.V("repo", key))
		}
		results = append(results, &result)
	}

	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate results")
	}

	return results, nil
}
