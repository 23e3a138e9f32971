package internal

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goplus/mlxsys/internal/log"
	"github.com/goplus/mlxsys/internal/pipeline"
)

var (
	buildFlags        compileFlags
	buildVerbose      bool
	buildForce        bool
	buildSkipBuild    bool
	buildCheckHeaders bool
	buildGenerator    string
	buildOutput       string
	buildBindings     string
	buildLink         string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build mlx-c and generate the Go package",
	Long: `Build resolves the build configuration, compiles and installs mlx-c
with CMake, writes the cgo link directives and generates the Go bindings.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildFlags.register(buildCmd)
	buildCmd.Flags().BoolVarP(&buildVerbose, "verbose", "v", false, "Show CMake output instead of logging it at debug level")
	buildCmd.Flags().BoolVar(&buildForce, "force", false, "Rebuild even if a matching build exists")
	buildCmd.Flags().BoolVar(&buildSkipBuild, "skip-build", false, "Reuse the existing native build without running CMake")
	buildCmd.Flags().BoolVar(&buildCheckHeaders, "check-headers", false, "Check the headers with the C compiler first")
	buildCmd.Flags().StringVarP(&buildGenerator, "generator", "G", "", "CMake generator")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Export the install layout (directory, .zip or .tar.xz)")
	buildCmd.Flags().StringVar(&buildBindings, "bindings", "", "Bindings file (default <out-dir>/bindings.go)")
	buildCmd.Flags().StringVar(&buildLink, "link", "", "Link directives file (default <out-dir>/cgo_flags.go)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags, err := buildFlags.value()
	if err != nil {
		return err
	}
	outDir, err := sess.outDir()
	if err != nil {
		return err
	}
	s := sess.settings
	generator := s.Generator
	if buildGenerator != "" {
		generator = buildGenerator
	}

	// Resolve the export path before the build runs.
	output := buildOutput
	if output != "" {
		if output, err = filepath.Abs(output); err != nil {
			return fmt.Errorf("failed to resolve output path: %w", err)
		}
	}

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	closeLogs := func() {}
	if !buildVerbose {
		lo, le := log.Writer(ctx, "cmake"), log.Writer(ctx, "cmake")
		stdout, stderr = lo, le
		closeLogs = func() {
			lo.Close()
			le.Close()
		}
	}

	res, err := pipeline.Run(ctx, pipeline.Options{
		Flags:           flags,
		Env:             sess.env,
		SourceDir:       s.SourceDir,
		OutDir:          outDir,
		Package:         s.Package,
		BindingsFile:    buildBindings,
		LinkFile:        buildLink,
		BuildConstraint: s.Constraint(),
		CMake:           s.CMake,
		Generator:       generator,
		CC:              s.CC,
		SkipBuild:       buildSkipBuild,
		Force:           buildForce,
		CheckHeaders:    buildCheckHeaders,
		Stdout:          stdout,
		Stderr:          stderr,
	})
	closeLogs()
	if err != nil {
		return err
	}

	if output != "" {
		if err := pipeline.Export(res.Layout, output); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "lib dir:  %s\n", res.Layout.LibDir)
	fmt.Fprintf(w, "link:     %s\n", res.LinkFile)
	fmt.Fprintf(w, "bindings: %s (%d functions, %d skipped)\n", res.BindingsFile, res.Bindings.Functions, len(res.Bindings.Skipped))
	if output != "" {
		fmt.Fprintf(w, "exported: %s\n", output)
	}
	return nil
}
