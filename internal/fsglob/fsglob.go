// Package fsglob resolves glob patterns (including **) to existing files on
// disk.
package fsglob

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Expander is the default filesystem glob collaborator.
type Expander struct{}

// Expand returns the deduplicated, sorted set of existing files matching any
// of the patterns, restricted to the given formats (extensions without the
// dot, matched case-insensitively). Patterns whose roots do not exist match
// nothing; only malformed patterns are an error.
func (Expander) Expand(ctx context.Context, patterns []string, formats []string) ([]string, error) {
	exts := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		exts["."+strings.ToLower(strings.TrimPrefix(f, "."))] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("expand: %w", err)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			if len(exts) > 0 {
				if _, ok := exts[strings.ToLower(filepath.Ext(m))]; !ok {
					continue
				}
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}

	sort.Strings(out)
	return out, nil
}
