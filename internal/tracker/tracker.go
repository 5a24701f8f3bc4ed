// Package tracker rewires automation sessions so a test run enumerates which
// reference images it would have checked instead of driving a real browser.
package tracker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/screensweep/screensweep/runner"
)

// Host is the subset of the runner tool the tracker needs.
type Host interface {
	BrowserConfig(browserID string) (*runner.BrowserConfig, bool)
	TestByContext(executionContext string) (*runner.Test, bool)
}

// ErrUnknownBrowser reports a session whose browser has no configuration.
var ErrUnknownBrowser = errors.New("no configuration for browser")

var (
	errNoStateLabel  = errors.New("assertView: missing state label")
	errNoCurrentTest = errors.New("assertView: no test owns the current execution context")
	errNoResolver    = errors.New("assertView: browser has no screenshot path resolver")
)

// Tracker installs the recording behavior on sessions, once per session.
type Tracker struct {
	host Host

	mu        sync.Mutex
	installed map[string]struct{}
}

func New(host Host) *Tracker {
	return &Tracker{host: host, installed: make(map[string]struct{})}
}

// neutral is the success value every stubbed capability resolves to.
func neutral() runner.Result {
	return runner.Result{Value: map[string]any{}}
}

// Install replaces every regular capability on sess with a no-op stub and the
// screenshot assertion with a path recorder. Reserved and private
// capabilities are left alone. A second call for the same session id is a
// no-op, so the recorder is installed at most once per session.
func (tr *Tracker) Install(sess runner.Session, browserID string) error {
	cfg, ok := tr.host.BrowserConfig(browserID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBrowser, browserID)
	}

	tr.mu.Lock()
	if _, ok := tr.installed[sess.ID()]; ok {
		tr.mu.Unlock()
		return nil
	}
	tr.installed[sess.ID()] = struct{}{}
	tr.mu.Unlock()

	for _, c := range sess.Capabilities() {
		if c.Reserved || c.Private || c.Name == runner.AssertViewCapability {
			continue
		}
		sess.Overwrite(c.Name, func(...any) (runner.Result, error) {
			return neutral(), nil
		})
	}

	sess.Overwrite(runner.AssertViewCapability, tr.recorder(sess, cfg))
	return nil
}

// recorder resolves (current test, state) to a reference path and appends it
// to the test's used list, in call order. No comparison and no file I/O
// happen. A resolver failure propagates to the caller and fails the test:
// the run is driven purely to enumerate references, and a resolver error is a
// configuration problem that must surface.
func (tr *Tracker) recorder(sess runner.Session, cfg *runner.BrowserConfig) runner.CapabilityFunc {
	return func(args ...any) (runner.Result, error) {
		state, err := stateLabel(args)
		if err != nil {
			return runner.Result{}, err
		}
		t, ok := tr.host.TestByContext(sess.ExecutionContext())
		if !ok {
			return runner.Result{}, errNoCurrentTest
		}
		if cfg.PathResolver == nil {
			return runner.Result{}, errNoResolver
		}
		path, err := cfg.PathResolver.ScreenshotPath(t, state)
		if err != nil {
			return runner.Result{}, fmt.Errorf("resolve screenshot path for state %q: %w", state, err)
		}
		t.UsedRefPaths = append(t.UsedRefPaths, path)
		return neutral(), nil
	}
}

func stateLabel(args []any) (string, error) {
	if len(args) == 0 {
		return "", errNoStateLabel
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("assertView: state label must be a string, got %T", args[0])
	}
	return s, nil
}
