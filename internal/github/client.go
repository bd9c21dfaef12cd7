// internal/github/client.go
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	apperrors "github-activity-sync/internal/errors"
	"github-activity-sync/internal/model"
)

const (
	// Max items per page allowed by the GitHub API.
	perPage = 100

	// Bounded retry on 5xx responses before the endpoint is abandoned.
	maxRetries = 3
	retryDelay = 2 * time.Second

	// Extra second slept past the advertised rate-limit reset.
	rateLimitBuffer = time.Second
)

// errStopPagination signals a clean early stop from a page callback.
var errStopPagination = errors.New("stop pagination")

// ListOptions bound a paginated fetch. A zero Since means no lower
// bound and suppresses the server-side filter entirely; MaxItems of
// zero means unbounded.
type ListOptions struct {
	Since    time.Time
	Until    time.Time
	MaxItems int
}

// Client is a wrapper around the go-github client.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance. The token is
// used for an authenticated http.Client whose transport also waits out
// GitHub secondary rate limits.
func NewClient(token string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}

	return &Client{
		gh:     github.NewClient(httpClient),
		logger: logger,
	}, nil
}

// WithBaseURL points the client at a different API endpoint (GitHub
// Enterprise, test servers).
func (c *Client) WithBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSuffix(raw, "/") + "/")
	if err != nil {
		return err
	}
	c.gh.BaseURL = u
	return nil
}

// ListCommits fetches commits for a repository within the given window.
// It handles API pagination and primary rate limits transparently.
func (c *Client) ListCommits(ctx context.Context, owner, name string, opts ListOptions) ([]model.Commit, error) {
	var all []model.Commit

	ghOpts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	if !opts.Since.IsZero() {
		ghOpts.Since = opts.Since
	}
	if !opts.Until.IsZero() {
		ghOpts.Until = opts.Until
	}

	err := c.forEachPage(ctx, owner+"/"+name+"/commits", opts.MaxItems, func(page int) (int, *github.Response, error) {
		ghOpts.Page = page
		commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, name, ghOpts)
		if err != nil {
			return 0, resp, err
		}
		for _, rc := range commits {
			commit, err := toInternalCommit(rc)
			if err != nil {
				c.logger.Warn("Skipping malformed commit", "owner", owner, "repo", name, "error", err)
				continue
			}
			all = append(all, commit)
		}
		return len(commits), resp, nil
	})
	return capItems(all, opts.MaxItems), err
}

// ListPullRequests fetches pull requests created within the window.
// The endpoint has no server-side since filter, so results are
// requested newest-first and the fetch stops at the first PR older
// than the lower bound.
func (c *Client) ListPullRequests(ctx context.Context, owner, name string, opts ListOptions) ([]model.PullRequest, error) {
	var all []model.PullRequest

	ghOpts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	err := c.forEachPage(ctx, owner+"/"+name+"/pulls", opts.MaxItems, func(page int) (int, *github.Response, error) {
		ghOpts.Page = page
		prs, resp, err := c.gh.PullRequests.List(ctx, owner, name, ghOpts)
		if err != nil {
			return 0, resp, err
		}
		for _, pr := range prs {
			created := pr.GetCreatedAt().Time
			if !opts.Since.IsZero() && created.Before(opts.Since) {
				// Sorted by created desc, so everything after this is older.
				return len(prs), resp, errStopPagination
			}
			if !opts.Until.IsZero() && created.After(opts.Until) {
				continue
			}
			p, err := toInternalPullRequest(pr)
			if err != nil {
				c.logger.Warn("Skipping malformed pull request", "owner", owner, "repo", name, "error", err)
				continue
			}
			all = append(all, p)
		}
		return len(prs), resp, nil
	})
	return capItems(all, opts.MaxItems), err
}

// ListIssues fetches issues updated within the window. Pull requests,
// which GitHub also returns on the issues endpoint, are excluded.
func (c *Client) ListIssues(ctx context.Context, owner, name string, opts ListOptions) ([]model.Issue, error) {
	var all []model.Issue

	ghOpts := &github.IssueListByRepoOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	if !opts.Since.IsZero() {
		ghOpts.Since = opts.Since
	}

	err := c.forEachPage(ctx, owner+"/"+name+"/issues", opts.MaxItems, func(page int) (int, *github.Response, error) {
		ghOpts.Page = page
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, name, ghOpts)
		if err != nil {
			return 0, resp, err
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			if !opts.Until.IsZero() && issue.GetCreatedAt().Time.After(opts.Until) {
				continue
			}
			is, err := toInternalIssue(issue)
			if err != nil {
				c.logger.Warn("Skipping malformed issue", "owner", owner, "repo", name, "error", err)
				continue
			}
			all = append(all, is)
		}
		return len(issues), resp, nil
	})
	return capItems(all, opts.MaxItems), err
}

// ListReviews fetches the reviews of a single pull request. The
// endpoint has no since filter, so the window is applied client-side.
func (c *Client) ListReviews(ctx context.Context, owner, name string, number int, opts ListOptions) ([]model.Review, error) {
	var all []model.Review

	ghOpts := &github.ListOptions{PerPage: perPage}

	endpoint := fmt.Sprintf("%s/%s/pulls/%d/reviews", owner, name, number)
	err := c.forEachPage(ctx, endpoint, opts.MaxItems, func(page int) (int, *github.Response, error) {
		ghOpts.Page = page
		reviews, resp, err := c.gh.PullRequests.ListReviews(ctx, owner, name, number, ghOpts)
		if err != nil {
			return 0, resp, err
		}
		for _, review := range reviews {
			submitted := review.GetSubmittedAt().Time
			if !opts.Since.IsZero() && !submitted.IsZero() && submitted.Before(opts.Since) {
				continue
			}
			if !opts.Until.IsZero() && submitted.After(opts.Until) {
				continue
			}
			rv, err := toInternalReview(review, number)
			if err != nil {
				c.logger.Warn("Skipping malformed review", "owner", owner, "repo", name, "pr", number, "error", err)
				continue
			}
			all = append(all, rv)
		}
		return len(reviews), resp, nil
	})
	return capItems(all, opts.MaxItems), err
}

// forEachPage drives the pagination loop for one endpoint. The fetch
// callback is invoked with the page number and reports how many raw
// items the page held. On a primary rate limit the same page is
// retried after sleeping until the advertised reset plus one second;
// 5xx responses get a bounded retry; any other terminal response stops
// the fetch with whatever was accumulated, which is not an error.
func (c *Client) forEachPage(ctx context.Context, endpoint string, maxItems int, fetch func(page int) (int, *github.Response, error)) error {
	page := 1
	total := 0
	retries := 0

	for {
		n, resp, err := fetch(page)
		if err != nil {
			if errors.Is(err, errStopPagination) {
				return nil
			}
			var rateErr *github.RateLimitError
			if errors.As(err, &rateErr) {
				wait := time.Until(rateErr.Rate.Reset.Time)
				if wait < 0 {
					wait = 0
				}
				c.logger.Warn("Rate limit reached, waiting", "endpoint", endpoint, "wait", (wait + rateLimitBuffer).String())
				if err := c.sleep(ctx, wait+rateLimitBuffer); err != nil {
					return err
				}
				continue // retry the same page
			}
			var abuseErr *github.AbuseRateLimitError
			if errors.As(err, &abuseErr) {
				if err := c.sleep(ctx, abuseErr.GetRetryAfter()+rateLimitBuffer); err != nil {
					return err
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			status := responseStatus(resp)
			if status == http.StatusConflict {
				// Empty repository; nothing to fetch.
				return nil
			}
			if status >= http.StatusInternalServerError && retries < maxRetries {
				retries++
				if err := c.sleep(ctx, retryDelay); err != nil {
					return err
				}
				continue
			}
			c.logger.Warn("Fetch halted, keeping partial results", "endpoint", endpoint, "status", status, "error", err)
			return nil
		}

		retries = 0
		total += n
		if n == 0 || resp.NextPage == 0 {
			return nil
		}
		if maxItems > 0 && total >= maxItems {
			return nil
		}
		page = resp.NextPage
	}
}

// sleep blocks for d or until the context is done.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func responseStatus(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

func capItems[T any](items []T, max int) []T {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}

// toInternalCommit translates a github.RepositoryCommit to our internal model.
func toInternalCommit(rc *github.RepositoryCommit) (model.Commit, error) {
	commit := rc.GetCommit()
	if commit == nil {
		return model.Commit{}, &apperrors.ErrMissingField{Kind: "commit", Field: "commit details", Ref: rc.GetSHA()}
	}
	author := commit.GetAuthor().GetName()
	if author == "" {
		author = rc.GetAuthor().GetLogin()
	}
	if author == "" {
		return model.Commit{}, &apperrors.ErrMissingField{Kind: "commit", Field: "author", Ref: rc.GetSHA()}
	}
	at := commit.GetAuthor().GetDate().Time
	if at.IsZero() {
		at = time.Now()
	}
	return model.Commit{
		Message:     commit.GetMessage(),
		Author:      author,
		CommittedAt: at.UTC(),
	}, nil
}

func toInternalPullRequest(pr *github.PullRequest) (model.PullRequest, error) {
	if pr.GetUser() == nil {
		return model.PullRequest{}, &apperrors.ErrMissingField{Kind: "pull request", Field: "user", Ref: strconv.Itoa(pr.GetNumber())}
	}
	at := pr.GetCreatedAt().Time
	if at.IsZero() {
		at = time.Now()
	}
	return model.PullRequest{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Author:    pr.GetUser().GetLogin(),
		CreatedAt: at.UTC(),
	}, nil
}

func toInternalIssue(issue *github.Issue) (model.Issue, error) {
	if issue.GetUser() == nil {
		return model.Issue{}, &apperrors.ErrMissingField{Kind: "issue", Field: "user", Ref: strconv.Itoa(issue.GetNumber())}
	}
	at := issue.GetCreatedAt().Time
	if at.IsZero() {
		at = time.Now()
	}
	return model.Issue{
		Title:     issue.GetTitle(),
		Author:    issue.GetUser().GetLogin(),
		CreatedAt: at.UTC(),
	}, nil
}

func toInternalReview(review *github.PullRequestReview, prNumber int) (model.Review, error) {
	if review.GetUser() == nil {
		return model.Review{}, &apperrors.ErrMissingField{Kind: "review", Field: "user", Ref: strconv.Itoa(prNumber)}
	}
	comment := review.GetBody()
	if comment == "" {
		comment = "No comment provided"
	}
	at := review.GetSubmittedAt().Time
	if at.IsZero() {
		at = time.Now()
	}
	return model.Review{
		Comment:   comment,
		Author:    review.GetUser().GetLogin(),
		CreatedAt: at.UTC(),
	}, nil
}
