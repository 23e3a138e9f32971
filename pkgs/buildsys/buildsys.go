package buildsys

import "context"

// BuildSystem captures what the native build needs from a build helper.
// CMake is the only implementation; the interface lets callers swap in a
// fake for tests.
type BuildSystem interface {
	// Basic paths.
	Source(dir string)
	InstallDir(dir string)

	// Configuration.
	BuildType(name string)
	Define(key, value string)
	DefineBool(key string, value bool)
	VeryVerbose(v bool)

	// Environment helper.
	Env(key, val string)

	// Lifecycle.
	Configure(ctx context.Context, args ...string) error
	Build(ctx context.Context, args ...string) error
	Install(ctx context.Context, args ...string) error

	// Where artifacts land.
	OutputDir() string
}

// RunError reports a failed tool invocation together with everything the
// tool wrote to stderr.
type RunError struct {
	Cmd    string
	Args   []string
	Err    error
	Stderr string
}

func (e *RunError) Error() string {
	return e.Cmd + ": " + e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}
