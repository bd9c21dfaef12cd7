// internal/database/kinds.go
package database

import (
	"fmt"

	"github-activity-sync/internal/model"
)

// kindColumns maps a record kind to its table and the columns that
// make up the natural key: the textual payload and the timestamp.
type kindColumns struct {
	table   string
	textCol string
	timeCol string
}

var kindTables = map[model.RecordKind]kindColumns{
	model.KindCommits:      {table: "commits", textCol: "message", timeCol: "committed_at"},
	model.KindPullRequests: {table: "pull_requests", textCol: "title", timeCol: "created_at"},
	model.KindIssues:       {table: "issues", textCol: "title", timeCol: "created_at"},
	model.KindReviews:      {table: "reviews", textCol: "comment", timeCol: "created_at"},
}

func columnsFor(kind model.RecordKind) (kindColumns, error) {
	cols, ok := kindTables[kind]
	if !ok {
		return kindColumns{}, fmt.Errorf("unknown record kind: %q", kind)
	}
	return cols, nil
}
