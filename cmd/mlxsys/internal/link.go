package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goplus/mlxsys/internal/link"
	"github.com/goplus/mlxsys/internal/nativebuild"
)

var (
	linkFlags  compileFlags
	linkLibDir string
	linkFormat string
	linkWrite  string
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Print or write the linker directives",
	Long: `Link emits the directives needed to link the native library into a
Go program: the library search path, the static libraries, the C++ and
Objective-C runtimes and the Apple frameworks.`,
	Args: cobra.NoArgs,
	RunE: runLink,
}

func init() {
	linkFlags.register(linkCmd)
	linkCmd.Flags().StringVar(&linkLibDir, "lib-dir", "", "Native library directory (default <out-dir>/build/lib)")
	linkCmd.Flags().StringVar(&linkFormat, "format", string(link.FormatFlags), "Output format: flags or lines")
	linkCmd.Flags().StringVarP(&linkWrite, "write", "w", "", "Write a cgo file with the directives instead of printing")
	rootCmd.AddCommand(linkCmd)
}

func runLink(cmd *cobra.Command, args []string) error {
	cfg, err := linkFlags.resolve()
	if err != nil {
		return err
	}

	var layout nativebuild.InstallLayout
	if linkLibDir != "" {
		abs, err := filepath.Abs(linkLibDir)
		if err != nil {
			return err
		}
		layout.LibDir = abs
	} else {
		outDir, err := sess.outDir()
		if err != nil {
			return err
		}
		layout = nativebuild.Layout(outDir, cfg.InstallPrefix)
	}

	ds := link.Emit(cfg, layout)
	if linkWrite == "" {
		return link.Print(cmd.OutOrStdout(), ds, link.Format(linkFormat))
	}
	if err := os.MkdirAll(filepath.Dir(linkWrite), 0o755); err != nil {
		return err
	}
	f := link.CgoFile{Package: sess.settings.Package, BuildConstraint: sess.settings.Constraint()}
	if err := f.WriteFile(linkWrite, ds); err != nil {
		return fmt.Errorf("failed to write link directives: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "link: %s\n", linkWrite)
	return nil
}
