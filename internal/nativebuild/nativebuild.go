// Package nativebuild drives the CMake build of the native library and
// reports where its artifacts were installed.
package nativebuild

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goplus/mlxsys/internal/config"
	"github.com/goplus/mlxsys/internal/log"
	"github.com/goplus/mlxsys/pkgs/buildsys"
	"github.com/goplus/mlxsys/pkgs/buildsys/cmake"
)

// MinCMakeVersion is the oldest cmake able to configure mlx.
const MinCMakeVersion = "v3.24"

// CMake cache entries toggling the optional backends.
const (
	DefineMetal      = "MLX_BUILD_METAL"
	DefineAccelerate = "MLX_BUILD_ACCELERATE"
)

// InstallLayout is the directory structure produced by the native build.
type InstallLayout struct {
	Root       string
	LibDir     string
	IncludeDir string
}

// Layout returns the install layout of a build in outDir with the given
// install prefix.
func Layout(outDir, prefix string) InstallLayout {
	root := prefix
	if !filepath.IsAbs(root) {
		root = filepath.Join(outDir, "build", prefix)
	}
	return InstallLayout{
		Root:       root,
		LibDir:     filepath.Join(root, "lib"),
		IncludeDir: filepath.Join(root, "include"),
	}
}

// Invoker runs the native build.
type Invoker struct {
	// SourceDir is the native source tree holding the top-level CMakeLists.txt.
	SourceDir string
	// OutDir receives the build tree and the install layout.
	OutDir string
	// CMake is the cmake executable; "cmake" when empty.
	CMake string
	// Generator optionally selects the CMake generator.
	Generator string
	// Libraries are the static libraries (without "lib" prefix and ".a"
	// suffix) a reusable build must contain.
	Libraries []string
	// Force rebuilds even when the previous build is reusable.
	Force bool
	// Stdout and Stderr receive the toolchain output; os.Stdout and
	// os.Stderr when nil.
	Stdout io.Writer
	Stderr io.Writer

	// NewBuildSystem replaces CMake, for tests.
	NewBuildSystem func(sourceDir, buildDir string) buildsys.BuildSystem
}

// Build configures, compiles and installs the native library. It blocks
// until the toolchain exits. Failures are returned as *NativeBuildError and
// leave any partial artifacts in place.
func (inv *Invoker) Build(ctx context.Context, cfg config.BuildConfiguration) (InstallLayout, error) {
	logger := log.FromCtx(ctx)
	layout := Layout(inv.OutDir, cfg.InstallPrefix)
	buildDir := filepath.Join(inv.OutDir, "build")

	if info, err := os.Stat(inv.SourceDir); err != nil {
		return layout, &NativeBuildError{Step: "locate", Err: fmt.Errorf("native source tree: %w", err)}
	} else if !info.IsDir() {
		return layout, &NativeBuildError{Step: "locate", Err: fmt.Errorf("native source tree %s is not a directory", inv.SourceDir)}
	}
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return layout, &NativeBuildError{Step: "prepare", Err: err}
	}

	unlock, err := lockFile(filepath.Join(inv.OutDir, ".lock"))
	if err != nil {
		return layout, &NativeBuildError{Step: "lock", Err: err}
	}
	defer unlock()

	cachePath := filepath.Join(inv.OutDir, cacheFile)
	fp, err := fingerprint(inv.SourceDir, cfg)
	if err != nil {
		return layout, &NativeBuildError{Step: "locate", Err: err}
	}
	// Double-check the cache after acquiring the lock: another process may
	// have built the same configuration.
	if !inv.Force && inv.reusable(cachePath, fp, layout) {
		logger.Info().Str("lib_dir", layout.LibDir).Msg("reusing native build")
		return layout, nil
	}

	bs, err := inv.buildSystem(ctx, buildDir)
	if err != nil {
		return layout, stepError("locate", err)
	}
	bs.Source(inv.SourceDir)
	bs.VeryVerbose(true)
	bs.InstallDir(cfg.InstallPrefix)
	bs.BuildType(cfg.BuildType.String())
	bs.DefineBool(DefineMetal, cfg.EnableMetal)
	bs.DefineBool(DefineAccelerate, cfg.EnableAccelerate)

	steps := []struct {
		name string
		run  func(context.Context, ...string) error
	}{
		{"configure", bs.Configure},
		{"build", bs.Build},
		{"install", bs.Install},
	}
	for _, step := range steps {
		logger.Info().
			Str("step", step.name).
			Str("build_type", cfg.BuildType.String()).
			Bool("metal", cfg.EnableMetal).
			Bool("accelerate", cfg.EnableAccelerate).
			Msg("native build")
		start := time.Now()
		if err := step.run(ctx); err != nil {
			return layout, stepError(step.name, err)
		}
		logger.Debug().Str("step", step.name).Dur("took", time.Since(start)).Msg("native build step done")
	}

	cache := &buildCache{
		Fingerprint: fp,
		BuildType:   cfg.BuildType.String(),
		Metal:       cfg.EnableMetal,
		Accelerate:  cfg.EnableAccelerate,
		BuildTime:   time.Now(),
	}
	if err := saveBuildCache(cachePath, cache); err != nil {
		logger.Warn().Err(err).Msg("failed to save build cache")
	}
	return layout, nil
}

func (inv *Invoker) buildSystem(ctx context.Context, buildDir string) (buildsys.BuildSystem, error) {
	if inv.NewBuildSystem != nil {
		return inv.NewBuildSystem(inv.SourceDir, buildDir), nil
	}
	bin := inv.CMake
	if bin == "" {
		bin = "cmake"
	}
	tools := []buildsys.Tool{{Name: bin, Purpose: "native library build"}}
	if t, ok := generatorTool(inv.Generator); ok {
		tools = append(tools, t)
	}
	if err := buildsys.CheckTools(tools...); err != nil {
		return nil, err
	}
	path, err := tools[0].LookPath()
	if err != nil {
		return nil, err
	}
	c := cmake.New(inv.SourceDir, buildDir)
	c.Binary(path)
	if err := c.CheckVersion(ctx, MinCMakeVersion); err != nil {
		return nil, err
	}
	if inv.Generator != "" {
		c.Generator(inv.Generator)
	}
	stdout, stderr := inv.Stdout, inv.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	c.Output(stdout, stderr)
	return c, nil
}

// generatorTool returns the build tool a CMake generator runs.
func generatorTool(generator string) (buildsys.Tool, bool) {
	switch generator {
	case "Ninja", "Ninja Multi-Config":
		return buildsys.Tool{Name: "ninja", Alternatives: []string{"ninja-build"}, Purpose: "CMake " + generator + " generator"}, true
	case "Unix Makefiles":
		return buildsys.Tool{Name: "make", Alternatives: []string{"gmake"}, Purpose: "CMake " + generator + " generator"}, true
	}
	return buildsys.Tool{}, false
}

func (inv *Invoker) reusable(cachePath, fp string, layout InstallLayout) bool {
	cache, err := loadBuildCache(cachePath)
	if err != nil || cache.Fingerprint != fp {
		return false
	}
	if _, err := os.Stat(layout.LibDir); err != nil {
		return false
	}
	for _, name := range inv.Libraries {
		if _, err := os.Stat(filepath.Join(layout.LibDir, "lib"+name+".a")); err != nil {
			return false
		}
	}
	return true
}
