package internal

import (
	"github.com/spf13/cobra"

	"github.com/goplus/mlxsys/internal/config"
)

// compileFlags are the flags standing in for the compile profile and
// capability features. Their defaults come from the build tags of this
// binary.
type compileFlags struct {
	profile    string
	metal      bool
	accelerate bool
}

func (f *compileFlags) register(cmd *cobra.Command) {
	def := config.DefaultCompileFlags()
	cmd.Flags().StringVar(&f.profile, "profile", def.Profile.String(), "Compile profile: debug or release")
	cmd.Flags().BoolVar(&f.metal, "metal", def.Metal, "Enable the Metal backend")
	cmd.Flags().BoolVar(&f.accelerate, "accelerate", def.Accelerate, "Enable the Accelerate backend")
}

func (f *compileFlags) value() (config.CompileFlags, error) {
	p, err := config.ParseProfile(f.profile)
	if err != nil {
		return config.CompileFlags{}, err
	}
	return config.CompileFlags{Profile: p, Metal: f.metal, Accelerate: f.accelerate}, nil
}

// resolve applies the environment overrides to the flags.
func (f *compileFlags) resolve() (config.BuildConfiguration, error) {
	flags, err := f.value()
	if err != nil {
		return config.BuildConfiguration{}, err
	}
	return config.Resolve(flags, sess.env), nil
}
