package internal

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/goplus/mlxsys/internal/config"
)

var (
	resolveFlags compileFlags
	resolveJSON  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the resolved build configuration",
	Long: `Resolve combines the compile profile and capability flags with the
MLX_RS_ENABLE_METAL and MLX_RS_ENABLE_ACCELERATE overrides and prints
the resulting build configuration.`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	resolveFlags.register(resolveCmd)
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(resolveCmd)
}

type resolvedConfig struct {
	BuildType     string `json:"build_type"`
	Metal         bool   `json:"metal"`
	Accelerate    bool   `json:"accelerate"`
	InstallPrefix string `json:"install_prefix"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := resolveFlags.resolve()
	if err != nil {
		return err
	}
	return printConfig(cmd.OutOrStdout(), cfg, resolveJSON)
}

func printConfig(w io.Writer, cfg config.BuildConfiguration, asJSON bool) error {
	rc := resolvedConfig{
		BuildType:     cfg.BuildType.String(),
		Metal:         cfg.EnableMetal,
		Accelerate:    cfg.EnableAccelerate,
		InstallPrefix: cfg.InstallPrefix,
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rc)
	}
	_, err := fmt.Fprintf(w, "build_type=%s\nmetal=%t\naccelerate=%t\ninstall_prefix=%s\n",
		rc.BuildType, rc.Metal, rc.Accelerate, rc.InstallPrefix)
	return err
}
