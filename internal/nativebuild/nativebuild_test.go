package nativebuild

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/goplus/mlxsys/internal/config"
	"github.com/goplus/mlxsys/pkgs/buildsys"
	"github.com/goplus/mlxsys/pkgs/buildsys/buildsystest"
)

func newInvoker(t *testing.T, fake *buildsystest.Fake) *Invoker {
	t.Helper()
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "CMakeLists.txt"), []byte("project(x)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &Invoker{
		SourceDir: src,
		OutDir:    t.TempDir(),
		Libraries: []string{"mlx", "mlxc"},
		NewBuildSystem: func(sourceDir, buildDir string) buildsys.BuildSystem {
			fake.BuildPath = buildDir
			return fake
		},
	}
}

func TestBuildPassesConfiguration(t *testing.T) {
	fake := buildsystest.New("", "", "mlx", "mlxc")
	inv := newInvoker(t, fake)
	cfg := config.BuildConfiguration{
		BuildType:        config.Debug,
		EnableMetal:      true,
		EnableAccelerate: false,
		InstallPrefix:    config.InstallPrefix,
	}

	layout, err := inv.Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if want := []string{"configure", "build", "install"}; !reflect.DeepEqual(fake.Steps, want) {
		t.Errorf("steps = %v, want %v", fake.Steps, want)
	}
	if fake.Type != "Debug" {
		t.Errorf("build type = %q, want Debug", fake.Type)
	}
	if fake.Prefix != "." {
		t.Errorf("install dir = %q, want \".\"", fake.Prefix)
	}
	if !fake.Verbose {
		t.Error("very verbose output not requested")
	}
	if !fake.Bools[DefineMetal] || fake.Bools[DefineAccelerate] {
		t.Errorf("bool defines = %v", fake.Bools)
	}
	if fake.SourcePath != inv.SourceDir {
		t.Errorf("source dir = %q, want %q", fake.SourcePath, inv.SourceDir)
	}

	wantLib := filepath.Join(inv.OutDir, "build", "lib")
	if layout.LibDir != wantLib {
		t.Errorf("LibDir = %q, want %q", layout.LibDir, wantLib)
	}
	if _, err := os.Stat(filepath.Join(inv.OutDir, cacheFile)); err != nil {
		t.Errorf("build cache not written: %v", err)
	}
}

func TestBuildFailureIsFatal(t *testing.T) {
	fake := buildsystest.New("", "build")
	inv := newInvoker(t, fake)

	_, err := inv.Build(context.Background(), config.Resolve(config.CompileFlags{}, nil))
	var nbErr *NativeBuildError
	if !errors.As(err, &nbErr) {
		t.Fatalf("error = %v, want *NativeBuildError", err)
	}
	if nbErr.Step != "build" {
		t.Errorf("Step = %q, want build", nbErr.Step)
	}
	if !strings.Contains(nbErr.Output, buildsystest.StepStderr("build")) {
		t.Errorf("Output = %q, want verbatim tool stderr", nbErr.Output)
	}
	if !strings.Contains(err.Error(), "CMake Error") {
		t.Errorf("Error() = %q, want tool stderr included", err.Error())
	}
	if want := []string{"configure", "build"}; !reflect.DeepEqual(fake.Steps, want) {
		t.Errorf("steps = %v, want %v (no retry, no install)", fake.Steps, want)
	}
	if _, err := os.Stat(filepath.Join(inv.OutDir, cacheFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cache written for a failed build: %v", err)
	}
}

func TestBuildMissingSourceDir(t *testing.T) {
	inv := &Invoker{SourceDir: filepath.Join(t.TempDir(), "missing"), OutDir: t.TempDir()}
	_, err := inv.Build(context.Background(), config.Resolve(config.CompileFlags{}, nil))
	var nbErr *NativeBuildError
	if !errors.As(err, &nbErr) || nbErr.Step != "locate" {
		t.Fatalf("error = %v, want NativeBuildError at locate", err)
	}
}

func TestBuildMissingToolchain(t *testing.T) {
	src := t.TempDir()
	inv := &Invoker{SourceDir: src, OutDir: t.TempDir(), CMake: "mlxsys-no-such-cmake"}
	_, err := inv.Build(context.Background(), config.Resolve(config.CompileFlags{}, nil))
	var nbErr *NativeBuildError
	if !errors.As(err, &nbErr) {
		t.Fatalf("error = %v, want *NativeBuildError", err)
	}
	if nbErr.Step != "locate" || !strings.Contains(err.Error(), "mlxsys-no-such-cmake") {
		t.Errorf("error = %v", err)
	}
}

func TestGeneratorTool(t *testing.T) {
	tests := []struct {
		generator string
		want      string
		ok        bool
	}{
		{"", "", false},
		{"Ninja", "ninja", true},
		{"Ninja Multi-Config", "ninja", true},
		{"Unix Makefiles", "make", true},
		{"Xcode", "", false},
	}
	for _, tt := range tests {
		tool, ok := generatorTool(tt.generator)
		if ok != tt.ok || tool.Name != tt.want {
			t.Errorf("generatorTool(%q) = %q, %v, want %q, %v", tt.generator, tool.Name, ok, tt.want, tt.ok)
		}
	}
}

func TestBuildReportsEveryMissingTool(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	inv := &Invoker{SourceDir: t.TempDir(), OutDir: t.TempDir(), CMake: "mlxsys-no-such-cmake", Generator: "Ninja"}
	_, err := inv.Build(context.Background(), config.Resolve(config.CompileFlags{}, nil))
	var nbErr *NativeBuildError
	if !errors.As(err, &nbErr) || nbErr.Step != "locate" {
		t.Fatalf("error = %v, want NativeBuildError at locate", err)
	}
	for _, want := range []string{"mlxsys-no-such-cmake", "ninja"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestBuildReusesIdenticalConfiguration(t *testing.T) {
	fake := buildsystest.New("", "", "mlx", "mlxc")
	inv := newInvoker(t, fake)
	cfg := config.Resolve(config.CompileFlags{}, nil)
	ctx := context.Background()

	if _, err := inv.Build(ctx, cfg); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	fake.Steps = nil
	if _, err := inv.Build(ctx, cfg); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if len(fake.Steps) != 0 {
		t.Errorf("identical rebuild ran %v, want reuse", fake.Steps)
	}

	cfg.EnableMetal = true
	if _, err := inv.Build(ctx, cfg); err != nil {
		t.Fatalf("third Build: %v", err)
	}
	if len(fake.Steps) != 3 {
		t.Errorf("changed configuration ran %v, want a full build", fake.Steps)
	}

	fake.Steps = nil
	inv.Force = true
	if _, err := inv.Build(ctx, cfg); err != nil {
		t.Fatalf("forced Build: %v", err)
	}
	if len(fake.Steps) != 3 {
		t.Errorf("forced build ran %v, want a full build", fake.Steps)
	}
}

func TestBuildRebuildsWhenArtifactsMissing(t *testing.T) {
	fake := buildsystest.New("", "", "mlx")
	inv := newInvoker(t, fake)
	cfg := config.Resolve(config.CompileFlags{}, nil)
	ctx := context.Background()

	if _, err := inv.Build(ctx, cfg); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	fake.Steps = nil
	if _, err := inv.Build(ctx, cfg); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if len(fake.Steps) != 3 {
		t.Errorf("build without libmlxc.a ran %v, want a full build", fake.Steps)
	}
}

func TestFingerprint(t *testing.T) {
	src := t.TempDir()
	file := filepath.Join(src, "CMakeLists.txt")
	if err := os.WriteFile(file, []byte("project(x)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Resolve(config.CompileFlags{}, nil)

	a, err := fingerprint(src, cfg)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	b, _ := fingerprint(src, cfg)
	if a != b {
		t.Error("fingerprint not stable")
	}

	cfg.EnableAccelerate = true
	if c, _ := fingerprint(src, cfg); c == a {
		t.Error("fingerprint ignores configuration")
	}

	cfg.EnableAccelerate = false
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(file, later, later); err != nil {
		t.Fatal(err)
	}
	if d, _ := fingerprint(src, cfg); d == a {
		t.Error("fingerprint ignores source changes")
	}
}

func TestSaveAndLoadBuildCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), cacheFile)
	now := time.Now().Truncate(time.Second)
	if err := saveBuildCache(path, &buildCache{Fingerprint: "abc", BuildType: "Release", BuildTime: now}); err != nil {
		t.Fatalf("saveBuildCache: %v", err)
	}
	loaded, err := loadBuildCache(path)
	if err != nil {
		t.Fatalf("loadBuildCache: %v", err)
	}
	if loaded.Fingerprint != "abc" || !loaded.BuildTime.Equal(now) {
		t.Errorf("loaded = %+v", loaded)
	}

	if err := os.WriteFile(path, []byte("invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadBuildCache(path); err == nil {
		t.Error("loadBuildCache accepted invalid json")
	}
}

func TestLayout(t *testing.T) {
	got := Layout("/out", ".")
	want := InstallLayout{
		Root:       filepath.Join("/out", "build"),
		LibDir:     filepath.Join("/out", "build", "lib"),
		IncludeDir: filepath.Join("/out", "build", "include"),
	}
	if got != want {
		t.Errorf("Layout = %+v, want %+v", got, want)
	}
	abs := filepath.Join(t.TempDir(), "prefix")
	if got := Layout("/out", abs); got.LibDir != filepath.Join(abs, "lib") {
		t.Errorf("absolute prefix LibDir = %q", got.LibDir)
	}
}

func TestBuildWithCMakeE2E(t *testing.T) {
	if _, err := exec.LookPath("cmake"); err != nil {
		t.Skip("cmake not found in PATH")
	}
	src, err := filepath.Abs(filepath.Join("testdata", "native"))
	if err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	inv := &Invoker{
		SourceDir: src,
		OutDir:    t.TempDir(),
		Libraries: []string{"mlx", "mlxc"},
		Stdout:    &stdout,
		Stderr:    &stderr,
	}
	layout, err := inv.Build(context.Background(), config.Resolve(config.CompileFlags{}, nil))
	if err != nil {
		var nbErr *NativeBuildError
		if errors.As(err, &nbErr) && nbErr.Step == "locate" {
			t.Skipf("cmake unusable: %v", err)
		}
		t.Fatalf("Build: %v", err)
	}
	for _, name := range []string{"libmlx.a", "libmlxc.a"} {
		if _, err := os.Stat(filepath.Join(layout.LibDir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
}
