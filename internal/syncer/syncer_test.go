// internal/syncer/syncer_test.go
package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github-activity-sync/internal/config"
	gh "github-activity-sync/internal/github"
	"github-activity-sync/internal/model"
)

// MockQuerier is a mock of the database.Querier interface.
type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) GetRepositoryByName(ctx context.Context, name string) (model.Repository, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(model.Repository), args.Error(1)
}
func (m *MockQuerier) CreateRepository(ctx context.Context, name string) (model.Repository, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(model.Repository), args.Error(1)
}
func (m *MockQuerier) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Repository), args.Error(1)
}
func (m *MockQuerier) CreateCommits(ctx context.Context, commits []model.Commit) (int64, error) {
	args := m.Called(ctx, commits)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) CreatePullRequests(ctx context.Context, prs []model.PullRequest) (int64, error) {
	args := m.Called(ctx, prs)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) CreateIssues(ctx context.Context, issues []model.Issue) (int64, error) {
	args := m.Called(ctx, issues)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) CreateReviews(ctx context.Context, reviews []model.Review) (int64, error) {
	args := m.Called(ctx, reviews)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) GetCommitsByRepoID(ctx context.Context, repoID int64) ([]model.Commit, error) {
	args := m.Called(ctx, repoID)
	return args.Get(0).([]model.Commit), args.Error(1)
}
func (m *MockQuerier) GetPullRequestsByRepoID(ctx context.Context, repoID int64) ([]model.PullRequest, error) {
	args := m.Called(ctx, repoID)
	return args.Get(0).([]model.PullRequest), args.Error(1)
}
func (m *MockQuerier) GetIssuesByRepoID(ctx context.Context, repoID int64) ([]model.Issue, error) {
	args := m.Called(ctx, repoID)
	return args.Get(0).([]model.Issue), args.Error(1)
}
func (m *MockQuerier) GetReviewsByRepoID(ctx context.Context, repoID int64) ([]model.Review, error) {
	args := m.Called(ctx, repoID)
	return args.Get(0).([]model.Review), args.Error(1)
}
func (m *MockQuerier) GetLatestTimestamp(ctx context.Context, kind model.RecordKind, repoID int64) (time.Time, error) {
	args := m.Called(ctx, kind, repoID)
	return args.Get(0).(time.Time), args.Error(1)
}
func (m *MockQuerier) ListNaturalKeys(ctx context.Context, kind model.RecordKind, repoID int64) ([]model.NaturalKey, error) {
	args := m.Called(ctx, kind, repoID)
	return args.Get(0).([]model.NaturalKey), args.Error(1)
}
func (m *MockQuerier) DeleteActivityInRange(ctx context.Context, kind model.RecordKind, repoID int64, since, until time.Time) (int64, error) {
	args := m.Called(ctx, kind, repoID, since, until)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) GetTopCommitAuthors(ctx context.Context, repoID int64, limit int32) ([]model.AuthorCount, error) {
	args := m.Called(ctx, repoID, limit)
	return args.Get(0).([]model.AuthorCount), args.Error(1)
}

// mockFetcher is a mock implementation of the Fetcher interface.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) ListCommits(ctx context.Context, owner, name string, opts gh.ListOptions) ([]model.Commit, error) {
	args := m.Called(ctx, owner, name, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Commit), args.Error(1)
}
func (m *mockFetcher) ListPullRequests(ctx context.Context, owner, name string, opts gh.ListOptions) ([]model.PullRequest, error) {
	args := m.Called(ctx, owner, name, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PullRequest), args.Error(1)
}
func (m *mockFetcher) ListIssues(ctx context.Context, owner, name string, opts gh.ListOptions) ([]model.Issue, error) {
	args := m.Called(ctx, owner, name, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Issue), args.Error(1)
}
func (m *mockFetcher) ListReviews(ctx context.Context, owner, name string, number int, opts gh.ListOptions) ([]model.Review, error) {
	args := m.Called(ctx, owner, name, number, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Review), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSyncer(db *MockQuerier, fetcher *mockFetcher, repos []config.RepoTarget, opts Options) *Syncer {
	s := New(db, fetcher, testLogger(), repos, opts)
	s.now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestClampStale(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("recent watermark is returned unchanged", func(t *testing.T) {
		wm := now.Add(-48 * time.Hour)
		assert.Equal(t, wm, clampStale(wm, now))
	})

	t.Run("watermark older than a year clamps to seven days ago", func(t *testing.T) {
		wm := now.Add(-366 * 24 * time.Hour)
		assert.Equal(t, now.Add(-7*24*time.Hour), clampStale(wm, now))
	})
}

func TestResolveSince(t *testing.T) {
	ctx := context.Background()
	repoID := int64(1)

	t.Run("uses the stored watermark when fresh", func(t *testing.T) {
		mockQ := new(MockQuerier)
		s := newTestSyncer(mockQ, nil, nil, Options{Mode: ModeIncrementalDedupe})

		wm := s.now().Add(-24 * time.Hour)
		mockQ.On("GetLatestTimestamp", ctx, model.KindCommits, repoID).Return(wm, nil).Once()

		since, err := s.resolveSince(ctx, model.KindCommits, repoID)
		require.NoError(t, err)
		assert.Equal(t, wm, since)
		mockQ.AssertExpectations(t)
	})

	t.Run("clamps a stale watermark to seven days ago", func(t *testing.T) {
		mockQ := new(MockQuerier)
		s := newTestSyncer(mockQ, nil, nil, Options{Mode: ModeIncrementalDedupe})

		stale := s.now().Add(-400 * 24 * time.Hour)
		mockQ.On("GetLatestTimestamp", ctx, model.KindCommits, repoID).Return(stale, nil).Once()

		since, err := s.resolveSince(ctx, model.KindCommits, repoID)
		require.NoError(t, err)
		assert.Equal(t, s.now().Add(-7*24*time.Hour), since)
	})

	t.Run("empty partition falls back to the configured floor", func(t *testing.T) {
		mockQ := new(MockQuerier)
		floor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		s := newTestSyncer(mockQ, nil, nil, Options{Mode: ModeIncrementalDedupe, DefaultSince: floor})

		mockQ.On("GetLatestTimestamp", ctx, model.KindCommits, repoID).Return(time.Time{}, nil).Once()

		since, err := s.resolveSince(ctx, model.KindCommits, repoID)
		require.NoError(t, err)
		assert.Equal(t, floor, since)
	})

	t.Run("empty partition with no floor means fetch everything", func(t *testing.T) {
		mockQ := new(MockQuerier)
		s := newTestSyncer(mockQ, nil, nil, Options{Mode: ModeIncrementalDedupe})

		mockQ.On("GetLatestTimestamp", ctx, model.KindCommits, repoID).Return(time.Time{}, nil).Once()

		since, err := s.resolveSince(ctx, model.KindCommits, repoID)
		require.NoError(t, err)
		assert.True(t, since.IsZero())
	})

	t.Run("full-range mode ignores the store entirely", func(t *testing.T) {
		mockQ := new(MockQuerier)
		floor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		s := newTestSyncer(mockQ, nil, nil, Options{Mode: ModeFullRange, DefaultSince: floor})

		since, err := s.resolveSince(ctx, model.KindCommits, repoID)
		require.NoError(t, err)
		assert.Equal(t, floor, since)
		mockQ.AssertNotCalled(t, "GetLatestTimestamp")
	})
}

func TestDedupeRecords(t *testing.T) {
	ctx := context.Background()
	repoID := int64(1)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	stored := model.Commit{RepositoryID: repoID, Message: "old", Author: "alice", CommittedAt: at}
	fresh := model.Commit{RepositoryID: repoID, Message: "new", Author: "bob", CommittedAt: at.Add(time.Hour)}

	t.Run("keeps exactly the candidates with no stored key match", func(t *testing.T) {
		mockQ := new(MockQuerier)
		s := newTestSyncer(mockQ, nil, nil, Options{Mode: ModeIncrementalDedupe})

		mockQ.On("ListNaturalKeys", ctx, model.KindCommits, repoID).
			Return([]model.NaturalKey{stored.Key()}, nil).Once()

		got, err := dedupeRecords(ctx, s, model.KindCommits, repoID, []model.Commit{stored, fresh}, model.Commit.Key)
		require.NoError(t, err)
		assert.Equal(t, []model.Commit{fresh}, got)
		mockQ.AssertExpectations(t)
	})

	t.Run("collapses duplicates inside the batch", func(t *testing.T) {
		mockQ := new(MockQuerier)
		s := newTestSyncer(mockQ, nil, nil, Options{Mode: ModeIncrementalDedupe})

		mockQ.On("ListNaturalKeys", ctx, model.KindCommits, repoID).
			Return([]model.NaturalKey{}, nil).Once()

		got, err := dedupeRecords(ctx, s, model.KindCommits, repoID, []model.Commit{fresh, fresh}, model.Commit.Key)
		require.NoError(t, err)
		assert.Equal(t, []model.Commit{fresh}, got)
	})

	t.Run("passes everything through outside dedupe mode", func(t *testing.T) {
		mockQ := new(MockQuerier)
		s := newTestSyncer(mockQ, nil, nil, Options{Mode: ModeIncremental})

		got, err := dedupeRecords(ctx, s, model.KindCommits, repoID, []model.Commit{stored, fresh}, model.Commit.Key)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		mockQ.AssertNotCalled(t, "ListNaturalKeys")
	})
}

func TestGetOrCreateRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a new repository if it does not exist", func(t *testing.T) {
		mockQ := new(MockQuerier)
		s := newTestSyncer(mockQ, nil, nil, Options{})

		mockQ.On("GetRepositoryByName", ctx, "acme/widgets").Return(model.Repository{}, pgx.ErrNoRows).Once()
		expected := model.Repository{ID: 1, Name: "acme/widgets"}
		mockQ.On("CreateRepository", ctx, "acme/widgets").Return(expected, nil).Once()

		repo, err := s.getOrCreateRepository(ctx, "acme/widgets")
		require.NoError(t, err)
		assert.Equal(t, expected, repo)
		mockQ.AssertExpectations(t)
	})

	t.Run("returns the existing repository without touching it", func(t *testing.T) {
		mockQ := new(MockQuerier)
		s := newTestSyncer(mockQ, nil, nil, Options{})

		existing := model.Repository{ID: 1, Name: "acme/widgets"}
		mockQ.On("GetRepositoryByName", ctx, "acme/widgets").Return(existing, nil).Once()

		repo, err := s.getOrCreateRepository(ctx, "acme/widgets")
		require.NoError(t, err)
		assert.Equal(t, existing, repo)
		mockQ.AssertNotCalled(t, "CreateRepository")
	})

	t.Run("propagates unexpected lookup errors", func(t *testing.T) {
		mockQ := new(MockQuerier)
		s := newTestSyncer(mockQ, nil, nil, Options{})
		dbErr := errors.New("unexpected database error")

		mockQ.On("GetRepositoryByName", ctx, "acme/widgets").Return(model.Repository{}, dbErr).Once()

		_, err := s.getOrCreateRepository(ctx, "acme/widgets")
		assert.Equal(t, dbErr, err)
		mockQ.AssertNotCalled(t, "CreateRepository")
	})
}

// expectEmptyKind wires the mocks so one kind resolves a zero
// watermark, fetches nothing and inserts nothing.
func expectEmptyKind(mockQ *MockQuerier, kind model.RecordKind, repoID int64) {
	mockQ.On("GetLatestTimestamp", mock.Anything, kind, repoID).Return(time.Time{}, nil)
}

func TestSyncRepo_ReviewsFetchedPerPullRequest(t *testing.T) {
	ctx := context.Background()
	target := config.RepoTarget{Owner: "acme", Name: "widgets"}
	repo := model.Repository{ID: 7, Name: "acme/widgets"}

	mockQ := new(MockQuerier)
	fetcher := new(mockFetcher)
	s := newTestSyncer(mockQ, fetcher, nil, Options{Mode: ModeIncrementalDedupe, ReviewPRLimit: 2})

	mockQ.On("GetRepositoryByName", ctx, "acme/widgets").Return(repo, nil).Once()
	for _, kind := range model.Kinds() {
		expectEmptyKind(mockQ, kind, repo.ID)
	}
	fetcher.On("ListCommits", ctx, "acme", "widgets", mock.Anything).Return([]model.Commit{}, nil).Once()
	fetcher.On("ListIssues", ctx, "acme", "widgets", mock.Anything).Return([]model.Issue{}, nil).Once()

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	prs := []model.PullRequest{
		{Number: 11, Title: "one", Author: "alice", CreatedAt: at},
		{Number: 12, Title: "two", Author: "bob", CreatedAt: at},
		{Number: 13, Title: "three", Author: "carol", CreatedAt: at},
	}
	fetcher.On("ListPullRequests", ctx, "acme", "widgets", mock.Anything).Return(prs, nil).Once()
	mockQ.On("ListNaturalKeys", ctx, model.KindPullRequests, repo.ID).Return([]model.NaturalKey{}, nil).Once()
	mockQ.On("CreatePullRequests", ctx, mock.Anything).Return(int64(3), nil).Once()

	review := model.Review{Comment: "nice", Author: "dave", CreatedAt: at}
	fetcher.On("ListReviews", ctx, "acme", "widgets", 11, mock.Anything).Return([]model.Review{review}, nil).Once()
	fetcher.On("ListReviews", ctx, "acme", "widgets", 12, mock.Anything).Return([]model.Review{}, nil).Once()
	mockQ.On("ListNaturalKeys", ctx, model.KindReviews, repo.ID).Return([]model.NaturalKey{}, nil).Once()
	mockQ.On("CreateReviews", ctx, mock.MatchedBy(func(reviews []model.Review) bool {
		return len(reviews) == 1 && reviews[0].RepositoryID == repo.ID
	})).Return(int64(1), nil).Once()

	err := s.SyncRepo(ctx, target)
	require.NoError(t, err)

	fetcher.AssertExpectations(t)
	mockQ.AssertExpectations(t)
	fetcher.AssertNotCalled(t, "ListReviews", ctx, "acme", "widgets", 13, mock.Anything)
}

func TestSyncRepo_KindFailureDoesNotAbortOthers(t *testing.T) {
	ctx := context.Background()
	target := config.RepoTarget{Owner: "acme", Name: "widgets"}
	repo := model.Repository{ID: 7, Name: "acme/widgets"}

	mockQ := new(MockQuerier)
	fetcher := new(mockFetcher)
	s := newTestSyncer(mockQ, fetcher, nil, Options{Mode: ModeIncremental})

	mockQ.On("GetRepositoryByName", ctx, "acme/widgets").Return(repo, nil).Once()
	for _, kind := range model.Kinds() {
		expectEmptyKind(mockQ, kind, repo.ID)
	}

	fetcher.On("ListCommits", ctx, "acme", "widgets", mock.Anything).
		Return(nil, errors.New("boom")).Once()
	fetcher.On("ListPullRequests", ctx, "acme", "widgets", mock.Anything).Return([]model.PullRequest{}, nil).Once()
	fetcher.On("ListIssues", ctx, "acme", "widgets", mock.Anything).Return([]model.Issue{}, nil).Once()

	err := s.SyncRepo(ctx, target)
	require.NoError(t, err, "a kind failure stays inside the repository")
	fetcher.AssertExpectations(t)
}

func TestRunCycle_RepoFailureIsolation(t *testing.T) {
	ctx := context.Background()
	repoA := config.RepoTarget{Owner: "acme", Name: "broken"}
	repoB := config.RepoTarget{Owner: "acme", Name: "healthy"}

	mockQ := new(MockQuerier)
	fetcher := new(mockFetcher)
	s := newTestSyncer(mockQ, fetcher, []config.RepoTarget{repoA, repoB}, Options{Mode: ModeIncremental})

	mockQ.On("GetRepositoryByName", ctx, "acme/broken").
		Return(model.Repository{}, errors.New("connection reset")).Once()

	healthy := model.Repository{ID: 2, Name: "acme/healthy"}
	mockQ.On("GetRepositoryByName", ctx, "acme/healthy").Return(healthy, nil).Once()
	for _, kind := range model.Kinds() {
		expectEmptyKind(mockQ, kind, healthy.ID)
	}
	fetcher.On("ListCommits", ctx, "acme", "healthy", mock.Anything).Return([]model.Commit{}, nil).Once()
	fetcher.On("ListPullRequests", ctx, "acme", "healthy", mock.Anything).Return([]model.PullRequest{}, nil).Once()
	fetcher.On("ListIssues", ctx, "acme", "healthy", mock.Anything).Return([]model.Issue{}, nil).Once()

	s.RunCycle(ctx)

	mockQ.AssertExpectations(t)
	fetcher.AssertExpectations(t)
}

func TestSyncRepo_Idempotence(t *testing.T) {
	// With no new remote activity, a second run inserts nothing.
	ctx := context.Background()
	target := config.RepoTarget{Owner: "acme", Name: "widgets"}
	repo := model.Repository{ID: 7, Name: "acme/widgets"}
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	commits := []model.Commit{
		{Message: "feat: a", Author: "alice", CommittedAt: at},
		{Message: "fix: b", Author: "bob", CommittedAt: at.Add(time.Hour)},
	}

	runOnce := func(existing []model.NaturalKey, expectInsert bool) {
		mockQ := new(MockQuerier)
		fetcher := new(mockFetcher)
		s := newTestSyncer(mockQ, fetcher, nil, Options{Mode: ModeIncrementalDedupe})

		mockQ.On("GetRepositoryByName", ctx, "acme/widgets").Return(repo, nil).Once()
		for _, kind := range model.Kinds() {
			expectEmptyKind(mockQ, kind, repo.ID)
		}
		fetcher.On("ListCommits", ctx, "acme", "widgets", mock.Anything).Return(commits, nil).Once()
		fetcher.On("ListPullRequests", ctx, "acme", "widgets", mock.Anything).Return([]model.PullRequest{}, nil).Once()
		fetcher.On("ListIssues", ctx, "acme", "widgets", mock.Anything).Return([]model.Issue{}, nil).Once()

		mockQ.On("ListNaturalKeys", ctx, model.KindCommits, repo.ID).Return(existing, nil).Once()
		if expectInsert {
			mockQ.On("CreateCommits", ctx, mock.MatchedBy(func(cs []model.Commit) bool {
				return len(cs) == 2
			})).Return(int64(2), nil).Once()
		}

		require.NoError(t, s.SyncRepo(ctx, target))
		mockQ.AssertExpectations(t)
		if !expectInsert {
			mockQ.AssertNotCalled(t, "CreateCommits")
		}
	}

	// First run: empty store, both commits inserted.
	runOnce([]model.NaturalKey{}, true)

	// Second run: the same commits are already stored.
	stored := make([]model.NaturalKey, len(commits))
	for i, c := range commits {
		stored[i] = c.Key()
	}
	runOnce(stored, false)
}

func TestSyncRepo_FullRangeClearsWindow(t *testing.T) {
	ctx := context.Background()
	target := config.RepoTarget{Owner: "acme", Name: "widgets"}
	repo := model.Repository{ID: 7, Name: "acme/widgets"}
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mockQ := new(MockQuerier)
	fetcher := new(mockFetcher)
	s := newTestSyncer(mockQ, fetcher, nil, Options{Mode: ModeFullRange, DefaultSince: since, Until: until})

	mockQ.On("GetRepositoryByName", ctx, "acme/widgets").Return(repo, nil).Once()
	for _, kind := range model.Kinds() {
		mockQ.On("DeleteActivityInRange", ctx, kind, repo.ID, since, until).Return(int64(3), nil).Once()
	}
	fetcher.On("ListCommits", ctx, "acme", "widgets", gh.ListOptions{Since: since, Until: until}).Return([]model.Commit{}, nil).Once()
	fetcher.On("ListPullRequests", ctx, "acme", "widgets", mock.Anything).Return([]model.PullRequest{}, nil).Once()
	fetcher.On("ListIssues", ctx, "acme", "widgets", mock.Anything).Return([]model.Issue{}, nil).Once()

	require.NoError(t, s.SyncRepo(ctx, target))
	mockQ.AssertExpectations(t)
	mockQ.AssertNotCalled(t, "GetLatestTimestamp")
	mockQ.AssertNotCalled(t, "ListNaturalKeys")
}
