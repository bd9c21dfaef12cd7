// internal/database/activity.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github-activity-sync/internal/model"
)

// CreateCommits bulk-inserts commits with COPY and returns the count.
func (q *Queries) CreateCommits(ctx context.Context, commits []model.Commit) (int64, error) {
	rows := make([][]any, len(commits))
	for i, c := range commits {
		rows[i] = []any{c.RepositoryID, c.Message, c.Author, c.CommittedAt.UTC()}
	}
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"commits"},
		[]string{"repository_id", "message", "author", "committed_at"},
		pgx.CopyFromRows(rows),
	)
}

func (q *Queries) CreatePullRequests(ctx context.Context, prs []model.PullRequest) (int64, error) {
	rows := make([][]any, len(prs))
	for i, p := range prs {
		rows[i] = []any{p.RepositoryID, p.Number, p.Title, p.Author, p.CreatedAt.UTC()}
	}
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"pull_requests"},
		[]string{"repository_id", "number", "title", "author", "created_at"},
		pgx.CopyFromRows(rows),
	)
}

func (q *Queries) CreateIssues(ctx context.Context, issues []model.Issue) (int64, error) {
	rows := make([][]any, len(issues))
	for i, is := range issues {
		rows[i] = []any{is.RepositoryID, is.Title, is.Author, is.CreatedAt.UTC()}
	}
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"issues"},
		[]string{"repository_id", "title", "author", "created_at"},
		pgx.CopyFromRows(rows),
	)
}

func (q *Queries) CreateReviews(ctx context.Context, reviews []model.Review) (int64, error) {
	rows := make([][]any, len(reviews))
	for i, r := range reviews {
		rows[i] = []any{r.RepositoryID, r.Comment, r.Author, r.CreatedAt.UTC()}
	}
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"reviews"},
		[]string{"repository_id", "comment", "author", "created_at"},
		pgx.CopyFromRows(rows),
	)
}

const getCommitsByRepoID = `
SELECT id, repository_id, message, author, committed_at
FROM commits WHERE repository_id = $1 ORDER BY committed_at DESC
`

func (q *Queries) GetCommitsByRepoID(ctx context.Context, repoID int64) ([]model.Commit, error) {
	rows, err := q.db.Query(ctx, getCommitsByRepoID, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commits []model.Commit
	for rows.Next() {
		var c model.Commit
		if err := rows.Scan(&c.ID, &c.RepositoryID, &c.Message, &c.Author, &c.CommittedAt); err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

const getPullRequestsByRepoID = `
SELECT id, repository_id, number, title, author, created_at
FROM pull_requests WHERE repository_id = $1 ORDER BY created_at DESC
`

func (q *Queries) GetPullRequestsByRepoID(ctx context.Context, repoID int64) ([]model.PullRequest, error) {
	rows, err := q.db.Query(ctx, getPullRequestsByRepoID, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prs []model.PullRequest
	for rows.Next() {
		var p model.PullRequest
		if err := rows.Scan(&p.ID, &p.RepositoryID, &p.Number, &p.Title, &p.Author, &p.CreatedAt); err != nil {
			return nil, err
		}
		prs = append(prs, p)
	}
	return prs, rows.Err()
}

const getIssuesByRepoID = `
SELECT id, repository_id, title, author, created_at
FROM issues WHERE repository_id = $1 ORDER BY created_at DESC
`

func (q *Queries) GetIssuesByRepoID(ctx context.Context, repoID int64) ([]model.Issue, error) {
	rows, err := q.db.Query(ctx, getIssuesByRepoID, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []model.Issue
	for rows.Next() {
		var is model.Issue
		if err := rows.Scan(&is.ID, &is.RepositoryID, &is.Title, &is.Author, &is.CreatedAt); err != nil {
			return nil, err
		}
		issues = append(issues, is)
	}
	return issues, rows.Err()
}

const getReviewsByRepoID = `
SELECT id, repository_id, comment, author, created_at
FROM reviews WHERE repository_id = $1 ORDER BY created_at DESC
`

func (q *Queries) GetReviewsByRepoID(ctx context.Context, repoID int64) ([]model.Review, error) {
	rows, err := q.db.Query(ctx, getReviewsByRepoID, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		var r model.Review
		if err := rows.Scan(&r.ID, &r.RepositoryID, &r.Comment, &r.Author, &r.CreatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// GetLatestTimestamp returns the newest stored timestamp for the
// (repository, kind) partition, or the zero time when none exist.
func (q *Queries) GetLatestTimestamp(ctx context.Context, kind model.RecordKind, repoID int64) (time.Time, error) {
	cols, err := columnsFor(kind)
	if err != nil {
		return time.Time{}, err
	}
	// Table and column names come from a fixed map, not user input.
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE repository_id = $1 ORDER BY %s DESC LIMIT 1",
		cols.timeCol, cols.table, cols.timeCol,
	)

	var ts time.Time
	err = q.db.QueryRow(ctx, query, repoID).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// ListNaturalKeys returns the natural key of every stored record in
// the (repository, kind) partition.
func (q *Queries) ListNaturalKeys(ctx context.Context, kind model.RecordKind, repoID int64) ([]model.NaturalKey, error) {
	cols, err := columnsFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT %s, author, %s FROM %s WHERE repository_id = $1",
		cols.textCol, cols.timeCol, cols.table,
	)

	rows, err := q.db.Query(ctx, query, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []model.NaturalKey
	for rows.Next() {
		var k model.NaturalKey
		if err := rows.Scan(&k.Text, &k.Author, &k.At); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteActivityInRange removes records of one kind within the given
// timestamp bounds; a zero bound is unbounded on that side.
func (q *Queries) DeleteActivityInRange(ctx context.Context, kind model.RecordKind, repoID int64, since, until time.Time) (int64, error) {
	cols, err := columnsFor(kind)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE repository_id = $1", cols.table)
	args := []any{repoID}
	if !since.IsZero() {
		args = append(args, since.UTC())
		query += fmt.Sprintf(" AND %s >= $%d", cols.timeCol, len(args))
	}
	if !until.IsZero() {
		args = append(args, until.UTC())
		query += fmt.Sprintf(" AND %s <= $%d", cols.timeCol, len(args))
	}

	tag, err := q.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const getTopCommitAuthors = `
SELECT author, COUNT(*) AS commit_count
FROM commits WHERE repository_id = $1
GROUP BY author ORDER BY commit_count DESC, author LIMIT $2
`

func (q *Queries) GetTopCommitAuthors(ctx context.Context, repoID int64, limit int32) ([]model.AuthorCount, error) {
	rows, err := q.db.Query(ctx, getTopCommitAuthors, repoID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []model.AuthorCount
	for rows.Next() {
		var a model.AuthorCount
		if err := rows.Scan(&a.Author, &a.Commits); err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}
