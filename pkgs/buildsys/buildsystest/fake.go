// Package buildsystest provides a fake buildsys.BuildSystem for tests.
package buildsystest

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/goplus/mlxsys/pkgs/buildsys"
)

// Fake records the calls made on it. Install creates an empty static
// archive in OutputDir()/lib for every name in Libs.
type Fake struct {
	SourcePath string
	BuildPath  string
	Prefix     string
	Type       string
	Verbose    bool
	Defines    map[string]string
	Bools      map[string]bool
	Environ    map[string]string
	Steps      []string
	Libs       []string

	// FailAt names the lifecycle step that fails with a *buildsys.RunError.
	FailAt string
}

var _ buildsys.BuildSystem = (*Fake)(nil)

// New returns a fake for the given build directory.
func New(buildDir, failAt string, libs ...string) *Fake {
	return &Fake{
		BuildPath: buildDir,
		Defines:   map[string]string{},
		Bools:     map[string]bool{},
		Environ:   map[string]string{},
		FailAt:    failAt,
		Libs:      libs,
	}
}

func (f *Fake) Source(dir string)                 { f.SourcePath = dir }
func (f *Fake) InstallDir(dir string)             { f.Prefix = dir }
func (f *Fake) BuildType(name string)             { f.Type = name }
func (f *Fake) Define(key, value string)          { f.Defines[key] = value }
func (f *Fake) DefineBool(key string, value bool) { f.Bools[key] = value }
func (f *Fake) VeryVerbose(v bool)                { f.Verbose = v }
func (f *Fake) Env(key, val string)               { f.Environ[key] = val }

// StepStderr is what a failing step reports on stderr.
func StepStderr(step string) string {
	return "CMake Error at CMakeLists.txt:1 (" + step + ")"
}

func (f *Fake) step(name string) error {
	f.Steps = append(f.Steps, name)
	if f.FailAt == name {
		return &buildsys.RunError{
			Cmd:    "cmake",
			Err:    errors.New("exit status 1"),
			Stderr: StepStderr(name),
		}
	}
	return nil
}

func (f *Fake) Configure(ctx context.Context, args ...string) error {
	return f.step("configure")
}

func (f *Fake) Build(ctx context.Context, args ...string) error {
	return f.step("build")
}

func (f *Fake) Install(ctx context.Context, args ...string) error {
	if err := f.step("install"); err != nil {
		return err
	}
	libDir := filepath.Join(f.OutputDir(), "lib")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		return err
	}
	for _, name := range f.Libs {
		if err := os.WriteFile(filepath.Join(libDir, "lib"+name+".a"), []byte("!<arch>\n"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) OutputDir() string {
	if filepath.IsAbs(f.Prefix) {
		return f.Prefix
	}
	return filepath.Join(f.BuildPath, f.Prefix)
}
