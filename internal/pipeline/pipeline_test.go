package pipeline

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goplus/mlxsys/internal/bindgen"
	"github.com/goplus/mlxsys/internal/config"
	"github.com/goplus/mlxsys/internal/link"
	"github.com/goplus/mlxsys/internal/nativebuild"
	"github.com/goplus/mlxsys/pkgs/buildsys"
	"github.com/goplus/mlxsys/pkgs/buildsys/buildsystest"
)

const fixture = "testdata/mlx-c"

func testOptions(t *testing.T, fake *buildsystest.Fake) Options {
	t.Helper()
	return Options{
		SourceDir:       fixture,
		OutDir:          t.TempDir(),
		BuildConstraint: "darwin",
		NewBuildSystem: func(sourceDir, buildDir string) buildsys.BuildSystem {
			fake.BuildPath = buildDir
			return fake
		},
	}
}

// requireCC skips t when no host C compiler is available for header
// parsing.
func requireCC(t *testing.T) {
	t.Helper()
	for _, c := range []string{os.Getenv("CC"), "cc", "gcc"} {
		if c == "" {
			continue
		}
		if _, err := exec.LookPath(c); err == nil {
			return
		}
	}
	t.Skip("no C compiler available")
}

func copyFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.CopyFS(dir, os.DirFS(fixture)))
	return dir
}

func TestRunDebugWithMetal(t *testing.T) {
	requireCC(t)
	fake := buildsystest.New("", "", "mlx", "mlxc")
	opts := testOptions(t, fake)
	opts.Flags = config.CompileFlags{Profile: config.ProfileDebug}
	opts.Env = config.Env{config.EnvEnableMetal: "1", config.EnvEnableAccelerate: "0"}

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, config.Debug, res.Config.BuildType)
	assert.True(t, res.Config.EnableMetal)
	assert.False(t, res.Config.EnableAccelerate)
	assert.Equal(t, []string{"configure", "build", "install"}, fake.Steps)
	assert.Equal(t, "Debug", fake.Type)
	assert.True(t, fake.Bools[nativebuild.DefineMetal])

	require.NotEmpty(t, res.Directives)
	assert.Equal(t, link.Directive{Kind: link.SearchPath, Value: res.Layout.LibDir}, res.Directives[0])
	assert.Contains(t, res.Directives, link.Directive{Kind: link.Framework, Value: "Metal"})
	assert.NotContains(t, res.Directives, link.Directive{Kind: link.Framework, Value: "Accelerate"})

	assert.Equal(t, filepath.Join(opts.OutDir, LinkFile), res.LinkFile)
	assert.Equal(t, filepath.Join(opts.OutDir, BindingsFile), res.BindingsFile)

	flags, err := os.ReadFile(res.LinkFile)
	require.NoError(t, err)
	assert.Contains(t, string(flags), "// #cgo LDFLAGS: -framework Metal\n")
	assert.Contains(t, string(flags), "//go:build darwin\n")
	assert.Contains(t, string(flags), "package mlx\n")

	bindings, err := os.ReadFile(res.BindingsFile)
	require.NoError(t, err)
	assert.Equal(t, res.Bindings.Source, bindings)
	assert.Contains(t, string(bindings), "func ArrayNew() Array {")
	assert.Contains(t, string(bindings), "func LinalgInv(res *Array, a Array) C.int {")
	assert.Contains(t, string(bindings), "func DetailCompileClearCache() C.int {")
}

func TestRunReleaseDefaults(t *testing.T) {
	requireCC(t)
	fake := buildsystest.New("", "", "mlx", "mlxc")
	opts := testOptions(t, fake)
	opts.Flags = config.CompileFlags{Profile: config.ProfileRelease, Accelerate: true}
	opts.Env = config.Env{config.EnvEnableMetal: "maybe"}
	opts.Package = "mlxc"
	opts.BindingsFile = filepath.Join(opts.OutDir, "gen", "mlx.go")

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, config.Release, res.Config.BuildType)
	assert.False(t, res.Config.EnableMetal)
	assert.True(t, res.Config.EnableAccelerate)
	assert.NotContains(t, res.Directives, link.Directive{Kind: link.Framework, Value: "Metal"})
	assert.Equal(t, link.Directive{Kind: link.Framework, Value: "Accelerate"}, res.Directives[len(res.Directives)-1])

	data, err := os.ReadFile(opts.BindingsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "package mlxc\n")
}

func TestRunMissingHeader(t *testing.T) {
	src := copyFixture(t)
	require.NoError(t, os.Remove(filepath.Join(src, "mlx", "c", "linalg.h")))

	fake := buildsystest.New("", "", "mlx", "mlxc")
	opts := testOptions(t, fake)
	opts.SourceDir = src

	_, err := Run(context.Background(), opts)
	require.Error(t, err)
	var bge *bindgen.BindingGenerationError
	require.True(t, errors.As(err, &bge), "err = %v", err)
	assert.Contains(t, bge.Path, "linalg.h")
	assert.Contains(t, err.Error(), "linalg.h")

	assert.NoFileExists(t, filepath.Join(opts.OutDir, BindingsFile))
	assert.NoFileExists(t, filepath.Join(opts.OutDir, LinkFile))
}

func TestRunNativeBuildFailure(t *testing.T) {
	fake := buildsystest.New("", "configure")
	opts := testOptions(t, fake)

	_, err := Run(context.Background(), opts)
	var nbe *nativebuild.NativeBuildError
	require.True(t, errors.As(err, &nbe), "err = %v", err)
	assert.Equal(t, "configure", nbe.Step)
	assert.Contains(t, err.Error(), buildsystest.StepStderr("configure"))
	assert.Equal(t, []string{"configure"}, fake.Steps)

	assert.NoFileExists(t, filepath.Join(opts.OutDir, BindingsFile))
	assert.NoFileExists(t, filepath.Join(opts.OutDir, LinkFile))
}

func TestRunSkipBuild(t *testing.T) {
	requireCC(t)
	fake := buildsystest.New("", "", "mlx", "mlxc")
	opts := testOptions(t, fake)
	opts.SkipBuild = true

	_, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no native build")

	opts.SkipBuild = false
	_, err = Run(context.Background(), opts)
	require.NoError(t, err)

	fake.Steps = nil
	opts.SkipBuild = true
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, fake.Steps)
	assert.Equal(t, nativebuild.Layout(opts.OutDir, config.InstallPrefix), res.Layout)
}
