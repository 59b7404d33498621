package changes

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/phasebuild/internal/errors"
)

// Matcher matches slash-separated relative paths against glob patterns.
// "*" stays within one path segment and "**" crosses segments. A pattern
// starting with "**/" also matches at the root, so "**/node_modules/**"
// matches "node_modules/x".
type Matcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewMatcher compiles patterns. An invalid pattern is an ErrInvalidInput.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(p)), "./")
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: glob pattern %q: %v", errors.ErrInvalidInput, p, err)
		}
		m.patterns = append(m.patterns, p)
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Empty reports whether the matcher has no patterns.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.globs) == 0
}

// Patterns returns the compiled patterns.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

// Match reports whether the file path rel matches any pattern.
func (m *Matcher) Match(rel string) bool {
	if m.Empty() {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range m.globs {
		if g.Match(rel) || g.Match("/"+rel) {
			return true
		}
	}
	return false
}

// MatchDir reports whether everything below the directory rel matches,
// which lets a walk skip the directory.
func (m *Matcher) MatchDir(rel string) bool {
	rel = strings.TrimSuffix(filepath.ToSlash(rel), "/")
	return m.Match(rel + "/")
}
