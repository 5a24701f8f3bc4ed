package screensweep_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/screensweep/screensweep"
	"github.com/screensweep/screensweep/config"
	"github.com/screensweep/screensweep/runner"
)

type fakeSession struct {
	id    string
	caps  []runner.Capability
	ctxID string
	fns   map[string]runner.CapabilityFunc
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Capabilities() []runner.Capability { return s.caps }

func (s *fakeSession) ExecutionContext() string { return s.ctxID }

func (s *fakeSession) Overwrite(name string, fn runner.CapabilityFunc) {
	s.fns[name] = fn
}

func (s *fakeSession) call(name string, args ...any) (runner.Result, error) {
	fn, ok := s.fns[name]
	if !ok {
		return runner.Result{}, fmt.Errorf("capability %s not installed", name)
	}
	return fn(args...)
}

type pair struct {
	t       *runner.Test
	browser string
}

type fakeCollection struct {
	browsers []string
	pairs    []pair
}

func (c *fakeCollection) Browsers() []string { return c.browsers }

func (c *fakeCollection) EachTest(fn func(t *runner.Test, browserID string)) {
	for _, p := range c.pairs {
		fn(p.t, p.browser)
	}
}

// fakeRunner is both the event bus and the tool object of a miniature host:
// RunTests replays the lifecycle the way a real runner would, invoking the
// session's installed assertView per scripted state.
type fakeRunner struct {
	browsers   map[string]*runner.BrowserConfig
	collection *fakeCollection
	states     map[string][]string // test id -> assertView states
	runErr     error

	cliReady        func(runner.Tool)
	testsEnumerated func(runner.TestCollection)
	testFinished    func(*runner.Test)
	sessionCreated  func(runner.Session, string)

	commands   []runner.Command
	sessions   map[string]*fakeSession
	testsByCtx map[string]*runner.Test
}

func newFakeRunner(browsers map[string]*runner.BrowserConfig, collection *fakeCollection, states map[string][]string) *fakeRunner {
	return &fakeRunner{
		browsers:   browsers,
		collection: collection,
		states:     states,
		sessions:   make(map[string]*fakeSession),
		testsByCtx: make(map[string]*runner.Test),
	}
}

func (h *fakeRunner) OnCLIReady(fn func(runner.Tool)) { h.cliReady = fn }

func (h *fakeRunner) OnTestsEnumerated(fn func(runner.TestCollection)) { h.testsEnumerated = fn }

func (h *fakeRunner) OnTestFinished(fn func(*runner.Test)) { h.testFinished = fn }

func (h *fakeRunner) OnSessionCreated(fn func(runner.Session, string)) { h.sessionCreated = fn }

func (h *fakeRunner) AddCommand(cmd runner.Command) { h.commands = append(h.commands, cmd) }

func (h *fakeRunner) BrowserConfig(id string) (*runner.BrowserConfig, bool) {
	cfg, ok := h.browsers[id]
	return cfg, ok
}

func (h *fakeRunner) TestByContext(ctxID string) (*runner.Test, bool) {
	t, ok := h.testsByCtx[ctxID]
	return t, ok
}

func (h *fakeRunner) RunTests(context.Context) (bool, error) {
	if h.runErr != nil {
		return false, h.runErr
	}
	h.testsEnumerated(h.collection)

	for _, b := range h.collection.browsers {
		sess := &fakeSession{
			id: "sess-" + b,
			caps: []runner.Capability{
				{Name: "click"},
				{Name: "emit", Reserved: true},
				{Name: runner.AssertViewCapability},
			},
			fns: make(map[string]runner.CapabilityFunc),
		}
		h.sessions[b] = sess
		h.sessionCreated(sess, b)
	}

	passed := true
	for _, p := range h.collection.pairs {
		sess := h.sessions[p.browser]
		sess.ctxID = "ctx-" + p.t.ID
		h.testsByCtx[sess.ctxID] = p.t
		for _, state := range h.states[p.t.ID] {
			if _, err := sess.call(runner.AssertViewCapability, state); err != nil {
				passed = false
			}
		}
		h.testFinished(p.t)
	}
	return passed, nil
}

type scriptedPrompter struct {
	t       *testing.T
	answers []bool
}

func (p *scriptedPrompter) Confirm(question string) (bool, error) {
	if len(p.answers) == 0 {
		p.t.Fatalf("unexpected prompt: %q", question)
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

type dirResolver string

func (d dirResolver) ScreenshotPath(_ *runner.Test, state string) (string, error) {
	return filepath.Join(string(d), state+".png"), nil
}

func writePNG(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func cleanCommand(t *testing.T, h *fakeRunner) runner.Command {
	t.Helper()
	if len(h.commands) != 1 {
		t.Fatalf("expected 1 registered command, got %d", len(h.commands))
	}
	cmd := h.commands[0]
	if cmd.Name != screensweep.CommandName {
		t.Fatalf("expected command %q, got %q", screensweep.CommandName, cmd.Name)
	}
	return cmd
}

func TestCleanScreenshotsEndToEnd(t *testing.T) {
	t.Parallel()

	refs := t.TempDir()
	used := writePNG(t, filepath.Join(refs, "used.png"))
	unusedFlat := writePNG(t, filepath.Join(refs, "unused.png"))
	unusedNested := writePNG(t, filepath.Join(refs, "nested", "old.png"))

	extra := t.TempDir()
	stray := writePNG(t, filepath.Join(extra, "stray.png"))

	test := &runner.Test{ID: "t1", FullTitle: "page looks right", Browser: "yabro"}
	h := newFakeRunner(
		map[string]*runner.BrowserConfig{
			"yabro": {
				ScreenshotsDir: runner.FixedDir{Path: refs},
				PathResolver:   dirResolver(refs),
			},
		},
		&fakeCollection{browsers: []string{"yabro"}, pairs: []pair{{test, "yabro"}}},
		map[string][]string{"t1": {"used"}},
	)

	var buf bytes.Buffer
	cfg := config.Config{Enabled: true, ScreenshotPaths: []string{filepath.Join(extra, "**")}}
	p := screensweep.New(cfg,
		screensweep.WithPrompter(&scriptedPrompter{t: t, answers: []bool{true, true}}),
		screensweep.WithLogger(log.New(&buf, "", 0)),
	)
	p.Attach(h)
	h.cliReady(h)

	if err := cleanCommand(t, h).Run(context.Background()); err != nil {
		t.Fatalf("clean-screenshots: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "found 3 unused screenshots") {
		t.Fatalf("expected 3 unused screenshots reported, got %q", out)
	}
	if !strings.Contains(out, "removed 3 unused screenshots") {
		t.Fatalf("expected removal report, got %q", out)
	}
	for _, f := range []string{unusedFlat, unusedNested, stray} {
		if _, err := os.Stat(f); !os.IsNotExist(err) {
			t.Errorf("expected %s removed, stat err: %v", f, err)
		}
	}
	if _, err := os.Stat(used); err != nil {
		t.Errorf("used reference was removed: %v", err)
	}
}

func TestCleanCancelledLeavesFiles(t *testing.T) {
	t.Parallel()

	refs := t.TempDir()
	unused := writePNG(t, filepath.Join(refs, "unused.png"))

	test := &runner.Test{ID: "t1", Browser: "yabro"}
	h := newFakeRunner(
		map[string]*runner.BrowserConfig{
			"yabro": {ScreenshotsDir: runner.FixedDir{Path: refs}, PathResolver: dirResolver(refs)},
		},
		&fakeCollection{browsers: []string{"yabro"}, pairs: []pair{{test, "yabro"}}},
		nil,
	)

	var buf bytes.Buffer
	p := screensweep.New(config.Config{Enabled: true},
		screensweep.WithPrompter(&scriptedPrompter{t: t, answers: []bool{false, false}}),
		screensweep.WithLogger(log.New(&buf, "", 0)),
	)
	p.Attach(h)
	h.cliReady(h)

	if err := cleanCommand(t, h).Run(context.Background()); err != nil {
		t.Fatalf("clean-screenshots: %v", err)
	}
	if !strings.Contains(buf.String(), "removal cancelled") {
		t.Fatalf("expected cancellation report, got %q", buf.String())
	}
	if _, err := os.Stat(unused); err != nil {
		t.Errorf("cancelled run touched the file system: %v", err)
	}
}

func TestCleanNothingFound(t *testing.T) {
	t.Parallel()

	refs := t.TempDir() // no reference images on disk

	test := &runner.Test{ID: "t1", Browser: "yabro"}
	h := newFakeRunner(
		map[string]*runner.BrowserConfig{
			"yabro": {ScreenshotsDir: runner.FixedDir{Path: refs}, PathResolver: dirResolver(refs)},
		},
		&fakeCollection{browsers: []string{"yabro"}, pairs: []pair{{test, "yabro"}}},
		nil,
	)

	var buf bytes.Buffer
	p := screensweep.New(config.Config{Enabled: true},
		screensweep.WithPrompter(&scriptedPrompter{t: t}), // any prompt fails the test
		screensweep.WithLogger(log.New(&buf, "", 0)),
	)
	p.Attach(h)
	h.cliReady(h)

	if err := cleanCommand(t, h).Run(context.Background()); err != nil {
		t.Fatalf("clean-screenshots: %v", err)
	}
	if !strings.Contains(buf.String(), "no screenshots found by patterns") {
		t.Fatalf("expected not-found report, got %q", buf.String())
	}
}

func TestDisabledPluginSubscribesNothing(t *testing.T) {
	t.Parallel()

	h := newFakeRunner(nil, &fakeCollection{}, nil)
	p := screensweep.New(config.Config{Enabled: false})
	p.Attach(h)

	if h.cliReady != nil || h.testsEnumerated != nil || h.testFinished != nil || h.sessionCreated != nil {
		t.Fatalf("disabled plugin subscribed to host events")
	}
}

func TestNormalRunLeavesSessionsAlone(t *testing.T) {
	t.Parallel()

	h := newFakeRunner(
		map[string]*runner.BrowserConfig{"yabro": {}},
		&fakeCollection{browsers: []string{"yabro"}},
		nil,
	)
	p := screensweep.New(config.Config{Enabled: true},
		screensweep.WithLogger(log.New(&bytes.Buffer{}, "", 0)),
	)
	p.Attach(h)
	h.cliReady(h)

	// A session created outside the clean-screenshots command must keep its
	// real behavior.
	sess := &fakeSession{id: "s1", caps: []runner.Capability{{Name: "click"}}, fns: make(map[string]runner.CapabilityFunc)}
	h.sessionCreated(sess, "yabro")

	if len(sess.fns) != 0 {
		t.Fatalf("normal run session was rewired: %v", sess.fns)
	}
}

func TestCleanReportsRunFailure(t *testing.T) {
	t.Parallel()

	h := newFakeRunner(nil, &fakeCollection{}, nil)
	h.runErr = errors.New("grid unavailable")

	var buf bytes.Buffer
	p := screensweep.New(config.Config{Enabled: true},
		screensweep.WithPrompter(&scriptedPrompter{t: t}),
		screensweep.WithLogger(log.New(&buf, "", 0)),
	)
	p.Attach(h)
	h.cliReady(h)

	err := cleanCommand(t, h).Run(context.Background())
	if err == nil || !errors.Is(err, h.runErr) {
		t.Fatalf("expected run error to propagate, got %v", err)
	}
	if !strings.Contains(buf.String(), "clean screenshots:") {
		t.Fatalf("expected error boundary log, got %q", buf.String())
	}
}
