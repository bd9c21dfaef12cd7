// internal/database/querier.go
package database

import (
	"context"
	"time"

	"github-activity-sync/internal/model"
)

// Querier is the persistence surface used by the syncer and the API.
// It exists so tests can substitute a mock for the pgx-backed Queries.
type Querier interface {
	GetRepositoryByName(ctx context.Context, name string) (model.Repository, error)
	CreateRepository(ctx context.Context, name string) (model.Repository, error)
	ListRepositories(ctx context.Context) ([]model.Repository, error)

	CreateCommits(ctx context.Context, commits []model.Commit) (int64, error)
	CreatePullRequests(ctx context.Context, prs []model.PullRequest) (int64, error)
	CreateIssues(ctx context.Context, issues []model.Issue) (int64, error)
	CreateReviews(ctx context.Context, reviews []model.Review) (int64, error)

	GetCommitsByRepoID(ctx context.Context, repoID int64) ([]model.Commit, error)
	GetPullRequestsByRepoID(ctx context.Context, repoID int64) ([]model.PullRequest, error)
	GetIssuesByRepoID(ctx context.Context, repoID int64) ([]model.Issue, error)
	GetReviewsByRepoID(ctx context.Context, repoID int64) ([]model.Review, error)

	// GetLatestTimestamp returns the newest stored timestamp for the
	// (repository, kind) partition, or the zero time when none exist.
	GetLatestTimestamp(ctx context.Context, kind model.RecordKind, repoID int64) (time.Time, error)

	// ListNaturalKeys returns the natural keys of every stored record
	// in the (repository, kind) partition.
	ListNaturalKeys(ctx context.Context, kind model.RecordKind, repoID int64) ([]model.NaturalKey, error)

	// DeleteActivityInRange removes records of one kind within the
	// given bounds; a zero bound is unbounded on that side.
	DeleteActivityInRange(ctx context.Context, kind model.RecordKind, repoID int64, since, until time.Time) (int64, error)

	GetTopCommitAuthors(ctx context.Context, repoID int64, limit int32) ([]model.AuthorCount, error)
}

var _ Querier = (*Queries)(nil)
