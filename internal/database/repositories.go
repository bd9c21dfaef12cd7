// internal/database/repositories.go
package database

import (
	"context"

	"github-activity-sync/internal/model"
)

const getRepositoryByName = `
SELECT id, name, created_at FROM repositories WHERE name = $1
`

// GetRepositoryByName looks up a repository by its "owner/name"
// identifier. Returns pgx.ErrNoRows when absent.
func (q *Queries) GetRepositoryByName(ctx context.Context, name string) (model.Repository, error) {
	var repo model.Repository
	err := q.db.QueryRow(ctx, getRepositoryByName, name).Scan(&repo.ID, &repo.Name, &repo.CreatedAt)
	return repo, err
}

const createRepository = `
INSERT INTO repositories (name) VALUES ($1) RETURNING id, name, created_at
`

// CreateRepository inserts a repository row with default fields.
func (q *Queries) CreateRepository(ctx context.Context, name string) (model.Repository, error) {
	var repo model.Repository
	err := q.db.QueryRow(ctx, createRepository, name).Scan(&repo.ID, &repo.Name, &repo.CreatedAt)
	return repo, err
}

const listRepositories = `
SELECT id, name, created_at FROM repositories ORDER BY name
`

func (q *Queries) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	rows, err := q.db.Query(ctx, listRepositories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		var repo model.Repository
		if err := rows.Scan(&repo.ID, &repo.Name, &repo.CreatedAt); err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}
