// internal/errors/errors.go
package errors

import "fmt"

// ErrInvalidRepoFormat is returned when a repository identifier in the
// configuration is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// ErrMissingField is returned when a fetched item lacks a field the
// record normalization requires. Such items are skipped, not fatal.
type ErrMissingField struct {
	Kind  string
	Field string
	Ref   string
}

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("%s %s: missing %s", e.Kind, e.Ref, e.Field)
}
