// Package pipeline runs the steps that turn the native mlx-c sources into
// a linkable Go package: resolve the configuration, build the native
// library, emit link directives and generate cgo bindings.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goplus/mlxsys/internal/bindgen"
	"github.com/goplus/mlxsys/internal/config"
	"github.com/goplus/mlxsys/internal/link"
	"github.com/goplus/mlxsys/internal/log"
	"github.com/goplus/mlxsys/internal/nativebuild"
	"github.com/goplus/mlxsys/pkgs/buildsys"
)

// Default artifact names inside the output directory.
const (
	BindingsFile = "bindings.go"
	LinkFile     = "cgo_flags.go"
)

// Options configures a pipeline run.
type Options struct {
	Flags config.CompileFlags
	Env   config.Env

	// SourceDir is the mlx-c source tree. Its root is also the include
	// directory for the bindings.
	SourceDir string
	OutDir    string

	// Package is the Go package of both generated files.
	Package string
	// BindingsFile and LinkFile default to files in OutDir.
	BindingsFile    string
	LinkFile        string
	BuildConstraint string

	CMake     string
	Generator string
	CC        string

	// SkipBuild reuses an existing install layout in OutDir without
	// running CMake.
	SkipBuild    bool
	Force        bool
	CheckHeaders bool

	Stdout io.Writer
	Stderr io.Writer

	// NewBuildSystem replaces CMake, for tests.
	NewBuildSystem func(sourceDir, buildDir string) buildsys.BuildSystem
}

// Result describes a successful run.
type Result struct {
	Config       config.BuildConfiguration
	Layout       nativebuild.InstallLayout
	Directives   []link.Directive
	LinkFile     string
	BindingsFile string
	Bindings     *bindgen.Bindings
}

func (o *Options) defaults() {
	if o.Package == "" {
		o.Package = "mlx"
	}
	if o.BindingsFile == "" {
		o.BindingsFile = filepath.Join(o.OutDir, BindingsFile)
	}
	if o.LinkFile == "" {
		o.LinkFile = filepath.Join(o.OutDir, LinkFile)
	}
}

// Run executes the pipeline. Steps run in order and the first error aborts
// the run; nothing is written unless every step before the writes
// succeeded.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := log.FromCtx(ctx)
	opts.defaults()

	cfg := config.Resolve(opts.Flags, opts.Env)
	logger.Info().
		Str("build_type", cfg.BuildType.String()).
		Bool("metal", cfg.EnableMetal).
		Bool("accelerate", cfg.EnableAccelerate).
		Msg("resolved build configuration")

	layout, err := buildNative(ctx, opts, cfg)
	if err != nil {
		return nil, err
	}

	ds := link.Emit(cfg, layout)
	for _, d := range ds {
		logger.Debug().Stringer("kind", d.Kind).Str("value", d.Value).Msg("link directive")
	}

	g := &bindgen.Generator{
		Package:         opts.Package,
		BuildConstraint: opts.BuildConstraint,
		Check:           opts.CheckHeaders,
		CC:              opts.CC,
	}
	b, err := g.Generate(ctx, bindgen.DefaultHeaderSet(opts.SourceDir))
	if err != nil {
		return nil, fmt.Errorf("generate bindings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.LinkFile), 0o755); err != nil {
		return nil, err
	}
	lf := link.CgoFile{Package: opts.Package, BuildConstraint: opts.BuildConstraint}
	if err := lf.WriteFile(opts.LinkFile, ds); err != nil {
		return nil, fmt.Errorf("write link directives: %w", err)
	}
	if err := b.WriteFile(opts.BindingsFile); err != nil {
		return nil, fmt.Errorf("write bindings: %w", err)
	}
	logger.Info().
		Str("link", opts.LinkFile).
		Str("bindings", opts.BindingsFile).
		Int("functions", b.Functions).
		Msg("generated Go package")

	return &Result{
		Config:       cfg,
		Layout:       layout,
		Directives:   ds,
		LinkFile:     opts.LinkFile,
		BindingsFile: opts.BindingsFile,
		Bindings:     b,
	}, nil
}

func buildNative(ctx context.Context, opts Options, cfg config.BuildConfiguration) (nativebuild.InstallLayout, error) {
	if opts.SkipBuild {
		layout := nativebuild.Layout(opts.OutDir, cfg.InstallPrefix)
		if _, err := os.Stat(layout.LibDir); err != nil {
			return layout, fmt.Errorf("no native build in %s: %w", opts.OutDir, err)
		}
		return layout, nil
	}
	inv := &nativebuild.Invoker{
		SourceDir:      opts.SourceDir,
		OutDir:         opts.OutDir,
		CMake:          opts.CMake,
		Generator:      opts.Generator,
		Libraries:      []string{link.CoreLibrary, link.WrapperLibrary},
		Force:          opts.Force,
		Stdout:         opts.Stdout,
		Stderr:         opts.Stderr,
		NewBuildSystem: opts.NewBuildSystem,
	}
	layout, err := inv.Build(ctx, cfg)
	if err != nil {
		return layout, fmt.Errorf("native build: %w", err)
	}
	return layout, nil
}
