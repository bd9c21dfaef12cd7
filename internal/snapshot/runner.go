// internal/snapshot/runner.go
package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github-activity-sync/internal/config"
	gh "github-activity-sync/internal/github"
	"github-activity-sync/internal/model"
)

// Fetcher is the GitHub surface the snapshot runner consumes.
type Fetcher interface {
	ListCommits(ctx context.Context, owner, name string, opts gh.ListOptions) ([]model.Commit, error)
	ListPullRequests(ctx context.Context, owner, name string, opts gh.ListOptions) ([]model.PullRequest, error)
	ListIssues(ctx context.Context, owner, name string, opts gh.ListOptions) ([]model.Issue, error)
	ListReviews(ctx context.Context, owner, name string, number int, opts gh.ListOptions) ([]model.Review, error)
}

// Runner performs a one-shot fetch of every configured repository and
// writes the snapshot files. There is no store and no dedupe; each run
// rewrites the full window.
type Runner struct {
	gh            Fetcher
	writer        *Writer
	logger        *slog.Logger
	since         time.Time
	until         time.Time
	reviewPRLimit int
}

func NewRunner(ghClient Fetcher, writer *Writer, logger *slog.Logger, since, until time.Time, reviewPRLimit int) *Runner {
	return &Runner{
		gh:            ghClient,
		writer:        writer,
		logger:        logger,
		since:         since,
		until:         until,
		reviewPRLimit: reviewPRLimit,
	}
}

// Run snapshots every target. A failure in one repository is logged
// and the rest are still processed; the index is always written.
func (r *Runner) Run(ctx context.Context, targets []config.RepoTarget) error {
	for _, target := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.snapshotRepo(ctx, target); err != nil {
			r.logger.Error("Failed to snapshot repository", "repo", target.FullName(), "error", err)
			continue
		}
		r.logger.Info("Snapshot written", "repo", target.FullName(), "file", target.OutFile)
	}
	return r.writer.WriteIndex(targets)
}

func (r *Runner) snapshotRepo(ctx context.Context, target config.RepoTarget) error {
	opts := gh.ListOptions{Since: r.since, Until: r.until}

	commits, err := r.gh.ListCommits(ctx, target.Owner, target.Name, opts)
	if err != nil {
		return err
	}
	prs, err := r.gh.ListPullRequests(ctx, target.Owner, target.Name, opts)
	if err != nil {
		return err
	}
	issues, err := r.gh.ListIssues(ctx, target.Owner, target.Name, opts)
	if err != nil {
		return err
	}

	limit := len(prs)
	if r.reviewPRLimit > 0 && limit > r.reviewPRLimit {
		limit = r.reviewPRLimit
	}
	var reviews []model.Review
	for _, pr := range prs[:limit] {
		prReviews, err := r.gh.ListReviews(ctx, target.Owner, target.Name, pr.Number, opts)
		if err != nil {
			return err
		}
		reviews = append(reviews, prReviews...)
	}

	doc := BuildDocument(target.FullName(), commits, prs, issues, reviews)
	return r.writer.WriteDocument(target, doc)
}
