package internal

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goplus/mlxsys/internal/bindgen"
	"github.com/goplus/mlxsys/internal/log"
	"github.com/goplus/mlxsys/internal/pipeline"
)

var (
	bindgenOutput string
	bindgenCheck  bool
)

var bindgenCmd = &cobra.Command{
	Use:   "bindgen",
	Short: "Generate the cgo bindings only",
	Long: `Bindgen reads mlx/c/mlx.h, mlx/c/linalg.h, mlx/c/error.h and
mlx/c/transforms_impl.h from the source tree and generates a Go file with
cgo declarations for them. The native library is not built.`,
	Args: cobra.NoArgs,
	RunE: runBindgen,
}

func init() {
	bindgenCmd.Flags().StringVarP(&bindgenOutput, "output", "o", "", `Output file, "-" for stdout (default <out-dir>/bindings.go)`)
	bindgenCmd.Flags().BoolVar(&bindgenCheck, "check-headers", false, "Check the headers with the C compiler first")
	rootCmd.AddCommand(bindgenCmd)
}

func runBindgen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := sess.settings
	g := &bindgen.Generator{
		Package:         s.Package,
		BuildConstraint: s.Constraint(),
		Check:           bindgenCheck,
		CC:              s.CC,
	}
	b, err := g.Generate(ctx, bindgen.DefaultHeaderSet(s.SourceDir))
	if err != nil {
		return err
	}
	logger := log.FromCtx(ctx)
	for _, skipped := range b.Skipped {
		logger.Debug().Str("decl", skipped).Msg("not wrapped")
	}

	if bindgenOutput == "-" {
		_, err := cmd.OutOrStdout().Write(b.Source)
		return err
	}
	path := bindgenOutput
	if path == "" {
		outDir, err := sess.outDir()
		if err != nil {
			return err
		}
		path = filepath.Join(outDir, pipeline.BindingsFile)
	}
	if err := b.WriteFile(path); err != nil {
		return fmt.Errorf("failed to write bindings: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "bindings: %s (%d functions, %d skipped)\n", path, b.Functions, len(b.Skipped))
	return nil
}
