// internal/model/models.go
package model

import "time"

// RecordKind identifies one of the four activity record collections.
type RecordKind string

const (
	KindCommits      RecordKind = "commits"
	KindPullRequests RecordKind = "pull_requests"
	KindIssues       RecordKind = "issues"
	KindReviews      RecordKind = "reviews"
)

// Kinds returns the record kinds in sync order.
func Kinds() []RecordKind {
	return []RecordKind{KindCommits, KindPullRequests, KindIssues, KindReviews}
}

// Repository is a tracked GitHub repository, identified by its
// "owner/name" string. Rows are created lazily and never updated.
type Repository struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

type Commit struct {
	ID           int64
	RepositoryID int64
	Message      string
	Author       string
	CommittedAt  time.Time
}

type PullRequest struct {
	ID           int64
	RepositoryID int64
	Number       int
	Title        string
	Author       string
	CreatedAt    time.Time
}

type Issue struct {
	ID           int64
	RepositoryID int64
	Title        string
	Author       string
	CreatedAt    time.Time
}

type Review struct {
	ID           int64
	RepositoryID int64
	Comment      string
	Author       string
	CreatedAt    time.Time
}

// AuthorCount is a per-author commit tally for reporting.
type AuthorCount struct {
	Author  string
	Commits int64
}

func (c Commit) Key() NaturalKey {
	return NaturalKey{Text: c.Message, Author: c.Author, At: c.CommittedAt}
}

func (p PullRequest) Key() NaturalKey {
	return NaturalKey{Text: p.Title, Author: p.Author, At: p.CreatedAt}
}

func (i Issue) Key() NaturalKey {
	return NaturalKey{Text: i.Title, Author: i.Author, At: i.CreatedAt}
}

func (r Review) Key() NaturalKey {
	return NaturalKey{Text: r.Comment, Author: r.Author, At: r.CreatedAt}
}
