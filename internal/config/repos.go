// internal/config/repos.go
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	apperrors "github-activity-sync/internal/errors"
)

// RepoTarget is one tracked repository. OutFile is only meaningful to
// the snapshot variant; the service ignores it.
type RepoTarget struct {
	Owner   string
	Name    string
	OutFile string
}

// FullName returns the "owner/name" identifier.
func (t RepoTarget) FullName() string {
	return t.Owner + "/" + t.Name
}

// LoadRepoFile parses a line-oriented repository file. Each line is
// "owner/name=value"; the value names the snapshot output file and may
// be omitted. Blank lines and '#' comments are skipped.
func LoadRepoFile(path string) ([]RepoTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening repository file: %w", err)
	}
	defer f.Close()

	var targets []RepoTarget
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		target, err := parseRepoTarget(strings.TrimSpace(key), strings.TrimSpace(value))
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading repository file: %w", err)
	}
	return targets, nil
}

// ParseRepoList converts "owner/name" strings into targets.
func ParseRepoList(repos []string) ([]RepoTarget, error) {
	var targets []RepoTarget
	for _, r := range repos {
		target, err := parseRepoTarget(strings.TrimSpace(r), "")
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func parseRepoTarget(id, out string) (RepoTarget, error) {
	owner, name, ok := strings.Cut(id, "/")
	if !ok || owner == "" || name == "" {
		return RepoTarget{}, &apperrors.ErrInvalidRepoFormat{Repo: id}
	}
	if out == "" {
		out = owner + "-" + name
	}
	if !strings.HasSuffix(out, ".json") {
		out += ".json"
	}
	return RepoTarget{Owner: owner, Name: name, OutFile: out}, nil
}
