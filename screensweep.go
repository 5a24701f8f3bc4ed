// Package screensweep is a test-runner plugin that detects screenshot
// reference images no longer used by any test and interactively deletes them.
//
// The plugin registers a clean-screenshots subcommand into the host runner's
// CLI. When invoked, it drives a full test run with every automation
// capability stubbed out so that each test only records which reference
// images it would have compared against, then expands the configured and
// derived search patterns on disk, diffs found against used, and asks the
// operator before removing the difference.
package screensweep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/screensweep/screensweep/config"
	"github.com/screensweep/screensweep/internal/fsglob"
	"github.com/screensweep/screensweep/internal/patterns"
	"github.com/screensweep/screensweep/internal/prompt"
	"github.com/screensweep/screensweep/internal/sweep"
	"github.com/screensweep/screensweep/internal/tracker"
	"github.com/screensweep/screensweep/internal/version"
	"github.com/screensweep/screensweep/runner"
)

// CommandName is the subcommand the plugin registers into the host CLI.
const CommandName = "clean-screenshots"

var errNoTool = errors.New("clean-screenshots invoked before the host CLI was ready")

// Globber expands glob patterns to existing files restricted to the given
// formats. The default is the doublestar-backed filesystem expander.
type Globber interface {
	Expand(ctx context.Context, patterns []string, formats []string) ([]string, error)
}

// Prompter asks the operator a yes/no question. The default reads stdin.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// runContext is the run-scoped accumulator shared by the plugin's event
// handlers and the cleanup pipeline. Coordinator handlers append patterns and
// used paths; worker-side session handlers only read the invoked flag.
type runContext struct {
	mu           sync.Mutex
	invoked      bool
	patterns     []string
	usedRefPaths []string
}

func (rc *runContext) markInvoked() {
	rc.mu.Lock()
	rc.invoked = true
	rc.mu.Unlock()
}

func (rc *runContext) cleanInvoked() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.invoked
}

func (rc *runContext) addPatterns(ps []string) {
	rc.mu.Lock()
	rc.patterns = append(rc.patterns, ps...)
	rc.mu.Unlock()
}

func (rc *runContext) addUsed(ps []string) {
	rc.mu.Lock()
	rc.usedRefPaths = append(rc.usedRefPaths, ps...)
	rc.mu.Unlock()
}

func (rc *runContext) snapshot() (globs, used []string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	globs = append([]string(nil), rc.patterns...)
	used = append([]string(nil), rc.usedRefPaths...)
	return globs, used
}

// Plugin wires unused-screenshot cleanup into a host test runner.
type Plugin struct {
	cfg      config.Config
	rc       runContext
	globber  Globber
	prompter Prompter
	logger   *log.Logger

	mu   sync.Mutex
	tool runner.Tool
	trk  *tracker.Tracker
}

// Option overrides one of the plugin's collaborators.
type Option func(*Plugin)

func WithGlobber(g Globber) Option {
	return func(p *Plugin) { p.globber = g }
}

func WithPrompter(pr Prompter) Option {
	return func(p *Plugin) { p.prompter = pr }
}

func WithLogger(l *log.Logger) Option {
	return func(p *Plugin) { p.logger = l }
}

// New creates the plugin. cfg should come from config.Resolve, which rejects
// malformed configuration before the plugin exists.
func New(cfg config.Config, opts ...Option) *Plugin {
	p := &Plugin{
		cfg:      cfg,
		globber:  fsglob.Expander{},
		prompter: prompt.New(os.Stdin, os.Stdout),
		logger:   log.Default(),
	}
	// Static patterns go in first so derived patterns follow them.
	p.rc.addPatterns(cfg.ScreenshotPaths)
	for _, o := range opts {
		o(p)
	}
	return p
}

// Attach subscribes the plugin to the host's lifecycle signals. It does
// nothing when the plugin is disabled, and the session hook does nothing
// unless the clean-screenshots command is the active command, so ordinary
// test runs are unaffected.
//
// Usage reports from a worker that crashes before finishing a test are lost;
// the mandatory confirmation before deletion is the guard against the
// resulting over-report of unused files.
func (p *Plugin) Attach(ev runner.Events) {
	if !p.cfg.Enabled {
		return
	}
	ev.OnCLIReady(p.onCLIReady)
	ev.OnTestsEnumerated(p.onTestsEnumerated)
	ev.OnTestFinished(p.onTestFinished)
	ev.OnSessionCreated(p.onSessionCreated)
}

func (p *Plugin) onCLIReady(tool runner.Tool) {
	p.mu.Lock()
	p.tool = tool
	p.trk = tracker.New(tool)
	p.mu.Unlock()

	tool.AddCommand(runner.Command{
		Name: CommandName,
		Help: "Detect and remove screenshot reference images unused by any test.",
		Run:  p.clean,
	})
}

func (p *Plugin) onTestsEnumerated(tc runner.TestCollection) {
	p.mu.Lock()
	tool := p.tool
	p.mu.Unlock()
	if tool == nil {
		return
	}
	p.rc.addPatterns(patterns.Derive(nil, tool, tc))
}

// onTestFinished merges the test's recorded reference paths into the
// run-scoped accumulator. This handler is the only writer of the used set.
func (p *Plugin) onTestFinished(t *runner.Test) {
	if len(t.UsedRefPaths) == 0 {
		return
	}
	p.rc.addUsed(t.UsedRefPaths)
}

func (p *Plugin) onSessionCreated(sess runner.Session, browserID string) {
	if !p.rc.cleanInvoked() {
		return
	}
	p.mu.Lock()
	trk := p.trk
	p.mu.Unlock()
	if trk == nil {
		return
	}
	if err := trk.Install(sess, browserID); err != nil {
		p.logger.Printf("track session %s: %v", sess.ID(), err)
	}
}

// clean is the clean-screenshots command action and the pipeline's single
// error boundary: every failure is logged here and returned so the host
// exits non-zero. Completed outcomes, including "nothing found" and
// "cancelled", return nil.
func (p *Plugin) clean(ctx context.Context) error {
	if err := p.runClean(ctx); err != nil {
		p.logger.Printf("clean screenshots: %v", err)
		return err
	}
	return nil
}

func (p *Plugin) runClean(ctx context.Context) error {
	p.mu.Lock()
	tool := p.tool
	p.mu.Unlock()
	if tool == nil {
		return errNoTool
	}

	p.logger.Printf("screensweep %s: scanning for unused screenshots", version.Version)
	p.rc.markInvoked()

	// The run is driven only to enumerate which references the tests would
	// check; test failures are expected with every capability stubbed and
	// do not abort the cleanup.
	if _, err := tool.RunTests(ctx); err != nil {
		return fmt.Errorf("run tests: %w", err)
	}

	globs, used := p.rc.snapshot()
	return sweep.Run(ctx, globs, used, sweep.Options{
		Globber:  p.globber,
		Prompter: p.prompter,
		Log:      p.logger,
	})
}
