// Package link turns a resolved build configuration into the ordered linker
// directives that bind the native library into a cgo program.
package link

import (
	"fmt"

	"github.com/goplus/mlxsys/internal/config"
	"github.com/goplus/mlxsys/internal/nativebuild"
)

// Libraries produced by the native build.
const (
	CoreLibrary    = "mlx"
	WrapperLibrary = "mlxc"
)

// Kind tags a Directive.
type Kind int

const (
	SearchPath Kind = iota
	StaticLib
	DynamicLib
	Framework
)

var kindNames = [...]string{
	SearchPath: "search-path",
	StaticLib:  "static",
	DynamicLib: "dylib",
	Framework:  "framework",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Directive is one instruction for the link step.
type Directive struct {
	Kind  Kind
	Value string
}

// Flags renders the directive as linker flags.
func (d Directive) Flags() []string {
	switch d.Kind {
	case SearchPath:
		return []string{"-L" + d.Value}
	case StaticLib, DynamicLib:
		return []string{"-l" + d.Value}
	case Framework:
		return []string{"-framework", d.Value}
	}
	return nil
}

func (d Directive) String() string {
	return d.Kind.String() + "=" + d.Value
}

// Emit returns the directives for cfg in the order the linker must apply
// them. The search path always comes first.
func Emit(cfg config.BuildConfiguration, layout nativebuild.InstallLayout) []Directive {
	ds := []Directive{
		{SearchPath, layout.LibDir},
		{StaticLib, CoreLibrary},
		{StaticLib, WrapperLibrary},
		{DynamicLib, "c++"},
		{DynamicLib, "objc"},
		{Framework, "Foundation"},
	}
	if cfg.EnableMetal {
		ds = append(ds, Directive{Framework, "Metal"})
	}
	if cfg.EnableAccelerate {
		ds = append(ds, Directive{Framework, "Accelerate"})
	}
	return ds
}

// LDFlags flattens directives into linker flags, keeping their order.
func LDFlags(ds []Directive) []string {
	var flags []string
	for _, d := range ds {
		flags = append(flags, d.Flags()...)
	}
	return flags
}
