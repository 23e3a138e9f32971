package internal

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goplus/mlxsys/internal/config"
	"github.com/goplus/mlxsys/internal/env"
	"github.com/goplus/mlxsys/internal/log"
)

var (
	rootDebug     bool
	rootConfig    string
	rootEnvFile   string
	rootSourceDir string
	rootOutDir    string
)

var rootCmd = &cobra.Command{
	Use:   "mlxsys",
	Short: "mlxsys builds mlx-c and generates Go bindings for it",
	Long: `mlxsys builds the mlx-c native library with CMake, emits the linker
directives needed to link it into a Go program and generates cgo
declarations for its C API.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&rootConfig, "config", "", "Settings file (.toml, .yaml, .yml or .json)")
	pf.StringVar(&rootEnvFile, "env-file", "", "Dotenv file merged under the process environment")
	pf.StringVar(&rootSourceDir, "source-dir", "", "mlx-c source tree (default src/mlx-c)")
	pf.StringVar(&rootOutDir, "out-dir", "", "Output directory (default <user cache>/.mlxsys)")
}

// session is what every command shares after setup.
type session struct {
	env      config.Env
	settings config.Settings
}

var sess session

// setup loads the environment and settings and installs the logger.
func setup(cmd *cobra.Command, args []string) error {
	e := config.OSEnv()
	if rootEnvFile != "" {
		fileEnv, err := config.ReadEnvFile(rootEnvFile)
		if err != nil {
			return fmt.Errorf("failed to read env file: %w", err)
		}
		e = config.Merge(fileEnv, e)
	}
	s, err := config.LoadSettings(rootConfig, e)
	if err != nil {
		return err
	}
	if rootSourceDir != "" {
		s.SourceDir = rootSourceDir
	}
	if rootOutDir != "" {
		s.OutDir = rootOutDir
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(log.NewContext(ctx, cmd.ErrOrStderr(), rootDebug || s.Debug))
	sess = session{env: e, settings: s}
	return nil
}

// outDir returns the configured output directory, creating it.
func (s session) outDir() (string, error) {
	dir, err := env.OutDir(s.settings.OutDir)
	if err != nil {
		return "", fmt.Errorf("failed to prepare output directory: %w", err)
	}
	return dir, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mlxsys:", err)
		os.Exit(1)
	}
}
