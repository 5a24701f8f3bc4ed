// Package patterns derives the glob patterns to scan for reference images
// from static configuration and runtime test/browser metadata.
package patterns

import (
	"path/filepath"

	"github.com/screensweep/screensweep/runner"
)

// Source yields per-browser screenshot configuration. runner.Tool satisfies
// it.
type Source interface {
	BrowserConfig(browserID string) (*runner.BrowserConfig, bool)
}

// RefPattern builds the glob matching every reference image under dir.
// Relative dirs resolve against the current working directory.
func RefPattern(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return filepath.Join(abs, "**", "*.png")
}

// Derive returns the full ordered pattern list: static patterns first in
// configured order, then one pattern per fixed-directory browser in browser
// enumeration order, then one pattern per enumerated (test, browser) pair for
// per-test-directory browsers. Insertion order is preserved; duplicates are
// removed later, by Dedupe, just before expansion.
//
// A browser with a fixed directory contributes exactly one pattern no matter
// how many tests run in it. Malformed directory values are not an error here;
// they surface as empty expansion results downstream.
func Derive(static []string, src Source, tc runner.TestCollection) []string {
	out := make([]string, 0, len(static))
	out = append(out, static...)

	for _, id := range tc.Browsers() {
		cfg, ok := src.BrowserConfig(id)
		if !ok || cfg.ScreenshotsDir == nil {
			continue
		}
		if loc, ok := cfg.ScreenshotsDir.(runner.FixedDir); ok {
			out = append(out, RefPattern(loc.Path))
		}
	}

	tc.EachTest(func(t *runner.Test, browserID string) {
		cfg, ok := src.BrowserConfig(browserID)
		if !ok || cfg.ScreenshotsDir == nil {
			return
		}
		if loc, ok := cfg.ScreenshotsDir.(runner.PerTestDir); ok {
			out = append(out, RefPattern(loc.Dir(t)))
		}
	})

	return out
}

// Dedupe removes later duplicates, preserving first-occurrence order.
func Dedupe(patterns []string) []string {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
