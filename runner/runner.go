// Package runner defines the collaborator surface a host browser-test runner
// exposes to the screensweep plugin: lifecycle signals, the tool object handed
// out at CLI-ready time, test descriptors, automation sessions with their
// capability registries, and per-browser screenshot configuration.
//
// The host implements these interfaces; the plugin only consumes them.
package runner

import "context"

// AssertViewCapability is the name of the session capability that performs a
// visual comparison of the current page against a named reference image.
const AssertViewCapability = "assertView"

// Test describes one (test, browser) execution.
type Test struct {
	ID        string
	FullTitle string
	Browser   string

	// UsedRefPaths accumulates the reference-image paths the test looked up
	// while running under the cleanup scan. Written only by the worker that
	// runs the test, read by the coordinator once the test finished.
	UsedRefPaths []string
}

// TestCollection is the enumerable result of test discovery.
type TestCollection interface {
	// Browsers returns the participating browser ids in a stable order.
	Browsers() []string
	// EachTest invokes fn once per (test, browser) pair in enumeration order.
	EachTest(fn func(t *Test, browserID string))
}

// Result is the value a session capability resolves to.
type Result struct {
	Value any
}

// CapabilityFunc is an installed capability behavior.
type CapabilityFunc func(args ...any) (Result, error)

// Capability describes one invocable capability on an automation session.
// Reserved marks the primitives intrinsic to every session (the event-emitter
// contract, the behavior-install capability, the execution-context accessor);
// Private marks capabilities the host considers internal.
type Capability struct {
	Name     string
	Reserved bool
	Private  bool
}

// Session is a live browser-automation session.
type Session interface {
	ID() string
	// Capabilities returns the session's declared capability registry.
	Capabilities() []Capability
	// Overwrite replaces the named capability's behavior.
	Overwrite(name string, fn CapabilityFunc)
	// ExecutionContext identifies the automation context currently driving
	// this session; the Tool maps it back to the owning test.
	ExecutionContext() string
}

// ScreenshotPathResolver maps a (test, state) pair to the path of the
// reference image an assertion would compare against. Called synchronously,
// once per assertion.
type ScreenshotPathResolver interface {
	ScreenshotPath(t *Test, state string) (string, error)
}

// ScreenshotLocation is where a browser keeps its reference images: either a
// fixed directory or a per-test function.
type ScreenshotLocation interface {
	screenshotLocation()
}

// FixedDir is a screenshot directory shared by every test in a browser.
type FixedDir struct {
	Path string
}

func (FixedDir) screenshotLocation() {}

// PerTestDir derives the screenshot directory from the test descriptor.
type PerTestDir struct {
	Dir func(t *Test) string
}

func (PerTestDir) screenshotLocation() {}

// BrowserConfig is the screenshot-related configuration of one browser.
type BrowserConfig struct {
	ScreenshotsDir ScreenshotLocation
	PathResolver   ScreenshotPathResolver
}

// Command is a subcommand registered into the host's CLI. A non-nil error
// from Run makes the host report it and exit non-zero; nil exits zero.
type Command struct {
	Name string
	Help string
	Run  func(ctx context.Context) error
}

// Tool is the host runner object handed to plugins at CLI-ready time.
type Tool interface {
	AddCommand(cmd Command)
	// RunTests executes the full test run. passed reports whether every test
	// succeeded; err reports infrastructure failures only.
	RunTests(ctx context.Context) (passed bool, err error)
	BrowserConfig(browserID string) (*BrowserConfig, bool)
	// TestByContext resolves the test owning an automation execution context.
	TestByContext(executionContext string) (*Test, bool)
}

// Events is the host's lifecycle signal surface. Each signal is delivered at
// most once per occurrence, with no replay. Handlers in the coordinating
// context are never invoked concurrently with each other; session handlers
// run in whichever worker owns the session.
type Events interface {
	// OnCLIReady fires once, in the coordinating context, before execution.
	OnCLIReady(fn func(tool Tool))
	// OnTestsEnumerated fires once after test discovery, before execution.
	OnTestsEnumerated(fn func(tc TestCollection))
	// OnTestFinished fires once per test per browser.
	OnTestFinished(fn func(t *Test))
	// OnSessionCreated fires once per browser session instantiation.
	OnSessionCreated(fn func(sess Session, browserID string))
}
