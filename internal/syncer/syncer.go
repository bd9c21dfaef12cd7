// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github-activity-sync/internal/config"
	"github-activity-sync/internal/database"
	gh "github-activity-sync/internal/github"
	"github-activity-sync/internal/model"
)

// Mode selects how a sync cycle treats already-stored records.
type Mode string

const (
	// ModeFullRange wipes the configured window and refetches it.
	// Mutually exclusive with incremental operation.
	ModeFullRange Mode = "full-range"
	// ModeIncremental resumes from the per-kind watermark without
	// checking for duplicates.
	ModeIncremental Mode = "incremental"
	// ModeIncrementalDedupe resumes from the watermark and drops
	// candidates whose natural key is already stored.
	ModeIncrementalDedupe Mode = "incremental-dedupe"
)

// ParseMode validates a mode string from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFullRange, ModeIncremental, ModeIncrementalDedupe:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown sync mode: %q", s)
}

const (
	// A watermark older than this is treated as unreliable (stale seed
	// data, clock skew) and clamped to a short trailing window.
	staleWatermarkAge = 365 * 24 * time.Hour
	clampedLookback   = 7 * 24 * time.Hour
)

// Fetcher is the GitHub surface the syncer consumes.
type Fetcher interface {
	ListCommits(ctx context.Context, owner, name string, opts gh.ListOptions) ([]model.Commit, error)
	ListPullRequests(ctx context.Context, owner, name string, opts gh.ListOptions) ([]model.PullRequest, error)
	ListIssues(ctx context.Context, owner, name string, opts gh.ListOptions) ([]model.Issue, error)
	ListReviews(ctx context.Context, owner, name string, number int, opts gh.ListOptions) ([]model.Review, error)
}

// Options configures a Syncer.
type Options struct {
	Interval time.Duration
	Mode     Mode
	// DefaultSince is the fetch floor used when nothing is stored yet,
	// and the lower bound of the full-range window. Zero means fetch
	// everything.
	DefaultSince time.Time
	// Until caps the window; zero means unbounded.
	Until time.Time
	// ReviewPRLimit caps how many pull requests are walked for
	// reviews each cycle; zero means all of them.
	ReviewPRLimit int
}

// Syncer drives the per-repository, per-kind sync pipeline. Execution
// is strictly sequential: repositories, kinds and pages are processed
// one at a time.
type Syncer struct {
	db     database.Querier
	gh     Fetcher
	logger *slog.Logger
	repos  []config.RepoTarget
	opts   Options
	now    func() time.Time
}

// New creates a new Syncer instance.
func New(db database.Querier, ghClient Fetcher, logger *slog.Logger, repos []config.RepoTarget, opts Options) *Syncer {
	return &Syncer{
		db:     db,
		gh:     ghClient,
		logger: logger,
		repos:  repos,
		opts:   opts,
		now:    time.Now,
	}
}

// Start begins the continuous synchronization process.
func (s *Syncer) Start(ctx context.Context) {
	s.logger.Info("Starting syncer", "interval", s.opts.Interval.String(), "mode", string(s.opts.Mode))
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.RunCycle(ctx) // Initial sync

	for {
		select {
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-ctx.Done():
			s.logger.Info("Syncer shutting down", "reason", ctx.Err())
			return
		}
	}
}

// RunCycle performs one pass over all configured repositories. A
// failure in one repository is logged and does not abort the rest.
func (s *Syncer) RunCycle(ctx context.Context) {
	logger := s.logger.With("run_id", uuid.NewString())
	logger.Info("Starting sync cycle", "repos", len(s.repos))

	for _, target := range s.repos {
		if ctx.Err() != nil {
			return
		}
		if err := s.SyncRepo(ctx, target); err != nil && !isCanceled(err) {
			logger.Error("Failed to sync repository", "repo", target.FullName(), "error", err)
		}
	}
	logger.Info("Sync cycle finished")
}

// SyncRepo runs the full pipeline for a single repository: get or
// create the repository row, then for each kind resolve the watermark,
// fetch, dedupe and persist. A failure in one kind is logged and does
// not abort the remaining kinds.
func (s *Syncer) SyncRepo(ctx context.Context, target config.RepoTarget) error {
	logger := s.logger.With("repo", target.FullName())
	logger.Info("Syncing repository")

	repo, err := s.getOrCreateRepository(ctx, target.FullName())
	if err != nil {
		return err
	}
	logger = logger.With("repo_id", repo.ID)

	if s.opts.Mode == ModeFullRange {
		s.clearWindow(ctx, logger, repo.ID)
	}

	if err := s.syncCommits(ctx, logger, target, repo.ID); err != nil {
		if isCanceled(err) {
			return err
		}
		logger.Error("Commit sync failed", "error", err)
	}

	prs, err := s.syncPullRequests(ctx, logger, target, repo.ID)
	if err != nil {
		if isCanceled(err) {
			return err
		}
		logger.Error("Pull request sync failed", "error", err)
	}

	if err := s.syncIssues(ctx, logger, target, repo.ID); err != nil {
		if isCanceled(err) {
			return err
		}
		logger.Error("Issue sync failed", "error", err)
	}

	if err := s.syncReviews(ctx, logger, target, repo.ID, prs); err != nil {
		if isCanceled(err) {
			return err
		}
		logger.Error("Review sync failed", "error", err)
	}

	logger.Info("Repository synced")
	return nil
}

// getOrCreateRepository looks a repository up by name and inserts a
// default row when absent. Existing rows are never updated.
func (s *Syncer) getOrCreateRepository(ctx context.Context, name string) (model.Repository, error) {
	repo, err := s.db.GetRepositoryByName(ctx, name)
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Info("Repository not found in DB, creating new entry", "repo", name)
		return s.db.CreateRepository(ctx, name)
	}
	return repo, err
}

// clearWindow range-deletes all four kinds inside the configured
// window before a full-range refetch. Per-kind failures are logged and
// do not stop the remaining kinds.
func (s *Syncer) clearWindow(ctx context.Context, logger *slog.Logger, repoID int64) {
	for _, kind := range model.Kinds() {
		n, err := s.db.DeleteActivityInRange(ctx, kind, repoID, s.opts.DefaultSince, s.opts.Until)
		if err != nil {
			logger.Error("Failed to clear existing records", "kind", string(kind), "error", err)
			continue
		}
		logger.Info("Cleared existing records", "kind", string(kind), "count", n)
	}
}

// resolveSince determines the fetch lower bound for one kind: the
// newest stored timestamp, the configured floor when nothing is
// stored, or the fixed window in full-range mode. A zero result means
// the since filter is omitted entirely.
func (s *Syncer) resolveSince(ctx context.Context, kind model.RecordKind, repoID int64) (time.Time, error) {
	if s.opts.Mode == ModeFullRange {
		return s.opts.DefaultSince, nil
	}
	latest, err := s.db.GetLatestTimestamp(ctx, kind, repoID)
	if err != nil {
		return time.Time{}, err
	}
	if latest.IsZero() {
		return s.opts.DefaultSince, nil
	}
	return clampStale(latest, s.now()), nil
}

// clampStale guards against implausibly old watermarks: anything older
// than a year resumes from a one-week trailing window instead. The
// bounded overlap refetch is acceptable; dedupe absorbs it.
func clampStale(watermark, now time.Time) time.Time {
	if now.Sub(watermark) > staleWatermarkAge {
		return now.Add(-clampedLookback)
	}
	return watermark
}

func (s *Syncer) syncCommits(ctx context.Context, logger *slog.Logger, target config.RepoTarget, repoID int64) error {
	since, err := s.resolveSince(ctx, model.KindCommits, repoID)
	if err != nil {
		return err
	}

	candidates, err := s.gh.ListCommits(ctx, target.Owner, target.Name, gh.ListOptions{Since: since, Until: s.opts.Until})
	if err != nil {
		return err
	}
	for i := range candidates {
		candidates[i].RepositoryID = repoID
	}

	fresh, err := dedupeRecords(ctx, s, model.KindCommits, repoID, candidates, model.Commit.Key)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		logger.Info("No new commits found")
		return nil
	}

	n, err := s.db.CreateCommits(ctx, fresh)
	if err != nil {
		return err
	}
	logger.Info("Inserted commits", "count", n)
	return nil
}

// syncPullRequests returns every PR fetched this cycle, not just the
// newly inserted ones; the review pass walks the full fetched set.
func (s *Syncer) syncPullRequests(ctx context.Context, logger *slog.Logger, target config.RepoTarget, repoID int64) ([]model.PullRequest, error) {
	since, err := s.resolveSince(ctx, model.KindPullRequests, repoID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.gh.ListPullRequests(ctx, target.Owner, target.Name, gh.ListOptions{Since: since, Until: s.opts.Until})
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		candidates[i].RepositoryID = repoID
	}

	fresh, err := dedupeRecords(ctx, s, model.KindPullRequests, repoID, candidates, model.PullRequest.Key)
	if err != nil {
		return candidates, err
	}
	if len(fresh) == 0 {
		logger.Info("No new pull requests found")
		return candidates, nil
	}

	n, err := s.db.CreatePullRequests(ctx, fresh)
	if err != nil {
		return candidates, err
	}
	logger.Info("Inserted pull requests", "count", n)
	return candidates, nil
}

func (s *Syncer) syncIssues(ctx context.Context, logger *slog.Logger, target config.RepoTarget, repoID int64) error {
	since, err := s.resolveSince(ctx, model.KindIssues, repoID)
	if err != nil {
		return err
	}

	candidates, err := s.gh.ListIssues(ctx, target.Owner, target.Name, gh.ListOptions{Since: since, Until: s.opts.Until})
	if err != nil {
		return err
	}
	for i := range candidates {
		candidates[i].RepositoryID = repoID
	}

	fresh, err := dedupeRecords(ctx, s, model.KindIssues, repoID, candidates, model.Issue.Key)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		logger.Info("No new issues found")
		return nil
	}

	n, err := s.db.CreateIssues(ctx, fresh)
	if err != nil {
		return err
	}
	logger.Info("Inserted issues", "count", n)
	return nil
}

// syncReviews fetches reviews per pull request (the endpoint is scoped
// to a single PR), accumulating across the PR set before deduping.
func (s *Syncer) syncReviews(ctx context.Context, logger *slog.Logger, target config.RepoTarget, repoID int64, prs []model.PullRequest) error {
	since, err := s.resolveSince(ctx, model.KindReviews, repoID)
	if err != nil {
		return err
	}

	limit := len(prs)
	if s.opts.ReviewPRLimit > 0 && limit > s.opts.ReviewPRLimit {
		limit = s.opts.ReviewPRLimit
	}

	var candidates []model.Review
	for _, pr := range prs[:limit] {
		reviews, err := s.gh.ListReviews(ctx, target.Owner, target.Name, pr.Number, gh.ListOptions{Since: since, Until: s.opts.Until})
		if err != nil {
			return err
		}
		candidates = append(candidates, reviews...)
	}
	for i := range candidates {
		candidates[i].RepositoryID = repoID
	}

	fresh, err := dedupeRecords(ctx, s, model.KindReviews, repoID, candidates, model.Review.Key)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		logger.Info("No new reviews found")
		return nil
	}

	n, err := s.db.CreateReviews(ctx, fresh)
	if err != nil {
		return err
	}
	logger.Info("Inserted reviews", "count", n)
	return nil
}

// dedupeRecords drops candidates whose natural key is already stored
// for the (repository, kind) partition. Existing keys are fetched once
// and diffed in memory; duplicates within the batch itself are also
// collapsed. Outside dedupe mode candidates pass through untouched.
func dedupeRecords[T any](ctx context.Context, s *Syncer, kind model.RecordKind, repoID int64, candidates []T, key func(T) model.NaturalKey) ([]T, error) {
	if s.opts.Mode != ModeIncrementalDedupe || len(candidates) == 0 {
		return candidates, nil
	}

	existing, err := s.db.ListNaturalKeys(ctx, kind, repoID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, k := range existing {
		seen[k.Canonical()] = struct{}{}
	}

	var fresh []T
	for _, c := range candidates {
		ck := key(c).Canonical()
		if _, ok := seen[ck]; ok {
			continue
		}
		seen[ck] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh, nil
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
