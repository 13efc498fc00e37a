package manifest

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"

	"github.com/sidkik/versync/pkg/errors"
)

// ignoreFilter excludes paths from a manifest.
// Patterns that contain a slash are matched against the full path relative to
// the content root. Patterns without a slash are matched against the base name
// of each path, so `*.tmp` ignores temporary files in every directory.
type ignoreFilter struct {
	patterns []string
	globs    []glob.Glob
	anchored []bool
}

func newIgnoreFilter(patterns []string) (ignoreFilter, error) {
	filter := ignoreFilter{patterns: patterns}
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			return ignoreFilter{}, errors.ValidationError{
				Field: "ignore filter", Reason: "empty pattern"}
		}

		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return ignoreFilter{}, errors.ValidationError{
				Field:  "ignore filter",
				Reason: fmt.Sprintf("%q: %s", pattern, err),
			}
		}
		filter.globs = append(filter.globs, g)
		filter.anchored = append(filter.anchored, strings.Contains(pattern, "/"))
	}
	return filter, nil
}

// Ignored returns whether the slash-separated relative path should be left
// out of the manifest.
func (filter ignoreFilter) Ignored(relPath string) bool {
	base := path.Base(relPath)
	for i, g := range filter.globs {
		if filter.anchored[i] {
			if g.Match(relPath) {
				return true
			}
		} else if g.Match(base) {
			return true
		}
	}
	return false
}
