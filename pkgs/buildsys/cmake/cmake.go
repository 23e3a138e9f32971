// Package cmake wraps the cmake configure/build/install workflow.
package cmake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goplus/mlxsys/pkgs/buildsys"
	"golang.org/x/mod/semver"
)

type defineValue struct {
	value    string
	typeName string
}

// CMake drives CMake-based builds.
type CMake struct {
	bin         string
	sourceDir   string
	buildDir    string
	installDir  string
	generator   string
	buildType   string
	toolchain   string
	veryVerbose bool
	defines     map[string]defineValue
	env         map[string]string
	stdout      io.Writer
	stderr      io.Writer
}

var _ buildsys.BuildSystem = (*CMake)(nil)

// New returns a CMake building sourceDir inside buildDir. Both paths are
// made absolute since every command runs inside buildDir.
func New(sourceDir, buildDir string) *CMake {
	return &CMake{
		bin:       "cmake",
		sourceDir: absPath(sourceDir),
		buildDir:  absPath(buildDir),
		defines:   make(map[string]defineValue),
		env:       make(map[string]string),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

// Binary sets the cmake executable.
func (c *CMake) Binary(path string) { c.bin = path }

// Source overrides the source directory.
func (c *CMake) Source(dir string) { c.sourceDir = absPath(dir) }

// InstallDir sets the install prefix. A relative prefix is resolved
// against the build directory, where every command runs.
func (c *CMake) InstallDir(dir string) { c.installDir = dir }

// Generator sets the CMake generator (e.g. "Ninja", "Unix Makefiles").
func (c *CMake) Generator(name string) { c.generator = name }

// BuildType sets CMAKE_BUILD_TYPE (e.g. "Release", "Debug").
func (c *CMake) BuildType(name string) { c.buildType = name }

// Toolchain sets CMAKE_TOOLCHAIN_FILE.
func (c *CMake) Toolchain(path string) { c.toolchain = path }

// VeryVerbose makes configure and build print everything they do.
func (c *CMake) VeryVerbose(v bool) { c.veryVerbose = v }

// Output redirects the tools' stdout and stderr.
func (c *CMake) Output(stdout, stderr io.Writer) {
	c.stdout = stdout
	c.stderr = stderr
}

// Define adds a -D<key>:STRING=<value> definition.
func (c *CMake) Define(key, value string) {
	c.defines[key] = defineValue{value: value, typeName: "STRING"}
}

// DefineBool adds a -D<key>:BOOL=ON/OFF definition.
func (c *CMake) DefineBool(key string, value bool) {
	v := "OFF"
	if value {
		v = "ON"
	}
	c.defines[key] = defineValue{value: v, typeName: "BOOL"}
}

// Env sets an environment variable for every cmake invocation.
func (c *CMake) Env(key, value string) {
	c.env[key] = value
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
// Extra args are appended at the end.
func (c *CMake) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return err
	}
	cmakeArgs := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	if c.installDir != "" {
		c.Define("CMAKE_INSTALL_PREFIX", c.installDir)
	}
	if c.toolchain != "" {
		c.Define("CMAKE_TOOLCHAIN_FILE", c.toolchain)
	}
	if c.buildType != "" {
		c.Define("CMAKE_BUILD_TYPE", c.buildType)
	}
	if c.veryVerbose {
		c.DefineBool("CMAKE_VERBOSE_MAKEFILE", true)
		cmakeArgs = append(cmakeArgs, "-Wdev", "--debug-output")
	}
	cmakeArgs = append(cmakeArgs, c.definesArgs()...)
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, cmakeArgs)
}

// Build runs "cmake --build <build>" with optional extra arguments.
func (c *CMake) Build(ctx context.Context, args ...string) error {
	cmakeArgs := []string{"--build", c.buildDir}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	if c.veryVerbose {
		cmakeArgs = append(cmakeArgs, "--verbose")
	}
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, cmakeArgs)
}

// Install runs "cmake --install <build>" with optional extra arguments.
func (c *CMake) Install(ctx context.Context, args ...string) error {
	cmakeArgs := []string{"--install", c.buildDir}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	if c.installDir != "" {
		cmakeArgs = append(cmakeArgs, "--prefix", c.installDir)
	}
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, cmakeArgs)
}

// OutputDir returns the install directory if set, otherwise the build
// directory. A relative install directory is joined to the build directory.
func (c *CMake) OutputDir() string {
	if c.installDir == "" {
		return c.buildDir
	}
	if filepath.IsAbs(c.installDir) {
		return c.installDir
	}
	return filepath.Join(c.buildDir, c.installDir)
}

// Version returns the cmake version in semver form, e.g. "v3.27.4".
func (c *CMake) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, c.bin, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", c.bin, err)
	}
	return parseVersion(string(out))
}

// CheckVersion fails when cmake is older than min (e.g. "v3.24").
func (c *CMake) CheckVersion(ctx context.Context, min string) error {
	v, err := c.Version(ctx)
	if err != nil {
		return err
	}
	if semver.Compare(v, min) < 0 {
		return fmt.Errorf("cmake %s is older than the required %s", v, min)
	}
	return nil
}

// parseVersion extracts the version from "cmake version 3.27.4" output.
func parseVersion(out string) (string, error) {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "cmake" || fields[1] != "version" {
		return "", fmt.Errorf("unexpected cmake --version output: %q", line)
	}
	v := fields[2]
	// Drop suffixes such as "-rc1" or "-dirty" that are not semver prereleases.
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	v = "v" + v
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid cmake version %q", fields[2])
	}
	return semver.Canonical(v), nil
}

func (c *CMake) run(ctx context.Context, args []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Dir = c.buildDir
	cmd.Stdout = c.stdout
	cmd.Stderr = io.MultiWriter(c.stderr, &stderr)
	if len(c.env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), c.env)
	}
	if err := cmd.Run(); err != nil {
		return &buildsys.RunError{Cmd: c.bin, Args: args, Err: err, Stderr: stderr.String()}
	}
	return nil
}

func (c *CMake) definesArgs() []string {
	if len(c.defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.defines))
	for k := range c.defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		d := c.defines[k]
		args = append(args, "-D"+k+":"+d.typeName+"="+d.value)
	}
	return args
}

func mergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
