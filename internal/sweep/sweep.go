// Package sweep implements the reconciliation pipeline: expand the search
// patterns to the reference images on disk, diff them against the paths used
// during the test run, and interactively delete the difference.
package sweep

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/screensweep/screensweep/internal/patterns"

	"golang.org/x/sync/errgroup"
)

// Globber expands glob patterns to existing files restricted to the given
// formats (extensions without the dot).
type Globber interface {
	Expand(ctx context.Context, patterns []string, formats []string) ([]string, error)
}

// Prompter asks the operator a yes/no question.
type Prompter interface {
	Confirm(question string) (bool, error)
}

const defaultParallel = 16

// Reference images are PNG; nothing else is ever swept.
var refFormats = []string{"png"}

type Options struct {
	Globber  Globber
	Prompter Prompter
	Log      *log.Logger
	// Parallel bounds the stat and unlink fan-out. Defaults to 16.
	Parallel int
}

// Run executes the pipeline once, sequentially: dedupe globs, expand, diff,
// size, confirm, delete. An empty expansion or an empty diff terminates
// successfully without touching the prompt or the file system. Declining
// removal terminates successfully too. Any failure returns to the caller;
// nothing is retried and nothing is caught here.
func Run(ctx context.Context, globs, used []string, opts Options) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	logger := opts.Log
	if logger == nil {
		logger = log.Default()
	}
	if opts.Parallel < 1 {
		opts.Parallel = defaultParallel
	}

	globs = patterns.Dedupe(globs)
	found, err := opts.Globber.Expand(ctx, globs, refFormats)
	if err != nil {
		return fmt.Errorf("expand patterns: %w", err)
	}
	if len(found) == 0 {
		logger.Printf("no screenshots found by patterns: %v", globs)
		return nil
	}

	unused := Diff(found, used)
	if len(unused) == 0 {
		logger.Printf("no unused screenshots found")
		return nil
	}

	total, err := totalSize(ctx, unused, opts.Parallel)
	if err != nil {
		return fmt.Errorf("stat unused screenshots: %w", err)
	}
	logger.Printf("found %d unused screenshots (%s)", len(unused), humanize.Bytes(total))

	show, err := opts.Prompter.Confirm("Show unused screenshots?")
	if err != nil {
		return fmt.Errorf("confirm listing: %w", err)
	}
	if show {
		for _, p := range unused {
			logger.Printf("%s", p)
		}
	}

	remove, err := opts.Prompter.Confirm("Remove unused screenshots?")
	if err != nil {
		return fmt.Errorf("confirm removal: %w", err)
	}
	if !remove {
		logger.Printf("removal cancelled, nothing deleted")
		return nil
	}

	if err := removeAll(ctx, unused, opts.Parallel); err != nil {
		return fmt.Errorf("remove unused screenshots: %w", err)
	}
	logger.Printf("removed %d unused screenshots (%s)", len(unused), humanize.Bytes(total))
	return nil
}

// Diff returns every element of found not present in used, preserving found
// order. Duplicates in used are tolerated.
func Diff(found, used []string) []string {
	keep := make(map[string]struct{}, len(used))
	for _, p := range used {
		keep[p] = struct{}{}
	}
	var unused []string
	for _, p := range found {
		if _, ok := keep[p]; ok {
			continue
		}
		unused = append(unused, p)
	}
	return unused
}

func totalSize(ctx context.Context, paths []string, parallel int) (uint64, error) {
	sizes := make([]int64, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := os.Stat(p)
			if err != nil {
				return fmt.Errorf("stat %s: %w", p, err)
			}
			sizes[i] = info.Size()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total uint64
	for _, s := range sizes {
		total += uint64(s)
	}
	return total, nil
}

func removeAll(ctx context.Context, paths []string, parallel int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := os.Remove(p); err != nil {
				return fmt.Errorf("remove %s: %w", p, err)
			}
			return nil
		})
	}
	return g.Wait()
}
