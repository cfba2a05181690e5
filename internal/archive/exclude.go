package archive

import (
	"path"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Excluder is the deny predicate over archive member paths.
// Patterns follow .gitignore syntax: a trailing slash matches directories and
// everything beneath them, a leading slash anchors at the archive root, and a
// leading "!" re-includes a path excluded by an earlier pattern.
type Excluder struct {
	// matcher evaluates the parsed patterns; the last matching pattern wins.
	matcher gitignore.Matcher
	// patterns keeps the accepted pattern lines for debug logging.
	patterns []string
}

// NewExcluder parses patterns, skipping blank lines and comments.
func NewExcluder(patterns []string) *Excluder {
	var (
		parsed   = make([]gitignore.Pattern, 0, len(patterns))
		accepted = make([]string, 0, len(patterns))
	)

	for _, line := range patterns {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed = append(parsed, gitignore.ParsePattern(line, nil))
		accepted = append(accepted, line)
	}

	return &Excluder{
		matcher:  gitignore.NewMatcher(parsed),
		patterns: accepted,
	}
}

// Patterns returns the accepted pattern lines.
func (e *Excluder) Patterns() []string {
	return append([]string(nil), e.patterns...)
}

// Excluded reports whether member, a slash-separated archive path, must be left out.
// A member is also excluded when any of its parent directories matches.
func (e *Excluder) Excluded(member string, isDir bool) bool {
	components := splitMember(member)
	if len(components) == 0 {
		return false
	}

	return e.matcher.Match(components, isDir)
}

// Included is the allow predicate for regular file members.
func (e *Excluder) Included(member string) bool {
	return !e.Excluded(member, false)
}

// splitMember normalizes member into its path components.
func splitMember(member string) []string {
	member = strings.ReplaceAll(member, "\\", "/")

	cleaned := strings.Trim(path.Clean("/"+member), "/")
	if cleaned == "" {
		return nil
	}

	return strings.Split(cleaned, "/")
}
