// internal/snapshot/snapshot.go
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github-activity-sync/internal/config"
	"github-activity-sync/internal/model"
)

// Document is the per-repository snapshot written for downstream
// display. Timestamps are UTC ISO-8601 strings with explicit offsets.
type Document struct {
	Repository   string   `json:"repository"`
	Commits      []Commit `json:"commits"`
	PullRequests []Record `json:"pull_requests"`
	Issues       []Record `json:"issues"`
	Reviews      []Review `json:"reviews"`
}

type Commit struct {
	Message     string `json:"message"`
	Author      string `json:"author"`
	CommittedAt string `json:"committed_at"`
}

// Record is the shared snapshot shape of pull requests and issues.
type Record struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

type Review struct {
	Comment   string `json:"comment"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

// BuildDocument converts fetched records into the snapshot shape.
func BuildDocument(repo string, commits []model.Commit, prs []model.PullRequest, issues []model.Issue, reviews []model.Review) Document {
	doc := Document{
		Repository:   repo,
		Commits:      []Commit{},
		PullRequests: []Record{},
		Issues:       []Record{},
		Reviews:      []Review{},
	}
	for _, c := range commits {
		doc.Commits = append(doc.Commits, Commit{
			Message:     c.Message,
			Author:      c.Author,
			CommittedAt: model.FormatTimestamp(c.CommittedAt),
		})
	}
	for _, p := range prs {
		doc.PullRequests = append(doc.PullRequests, Record{
			Title:     p.Title,
			Author:    p.Author,
			CreatedAt: model.FormatTimestamp(p.CreatedAt),
		})
	}
	for _, is := range issues {
		doc.Issues = append(doc.Issues, Record{
			Title:     is.Title,
			Author:    is.Author,
			CreatedAt: model.FormatTimestamp(is.CreatedAt),
		})
	}
	for _, r := range reviews {
		doc.Reviews = append(doc.Reviews, Review{
			Comment:   r.Comment,
			Author:    r.Author,
			CreatedAt: model.FormatTimestamp(r.CreatedAt),
		})
	}
	return doc
}

// Writer persists snapshot documents under a single output directory.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// WriteDocument writes one repository snapshot to the target's
// configured file name.
func (w *Writer) WriteDocument(target config.RepoTarget, doc Document) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(w.dir, target.OutFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	return nil
}

// WriteIndex writes repos.json, the list of all tracked repository
// names, next to the per-repository snapshots.
func (w *Writer) WriteIndex(targets []config.RepoTarget) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.FullName())
	}
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(w.dir, "repos.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing index %s: %w", path, err)
	}
	return nil
}
