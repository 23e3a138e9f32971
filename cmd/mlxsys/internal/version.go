package internal

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/goplus/mlxsys/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and compiled-in defaults",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		def := config.DefaultCompileFlags()
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "mlxsys %s %s/%s\n", version(), runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(w, "defaults: profile=%s metal=%t accelerate=%t\n", def.Profile, def.Metal, def.Accelerate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}
