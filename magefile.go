//go:build mage

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

// Build compiles the mlxsys command.
func Build() error {
	return sh.RunV("go", "build", "-o", "bin/mlxsys", "./cmd/mlxsys")
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Generate builds mlx-c and writes the cgo files into $MLXSYS_OUT_DIR,
// with Metal enabled.
func Generate() error {
	mg.Deps(Build)
	return sh.RunWithV(map[string]string{"MLX_RS_ENABLE_METAL": "on"},
		"bin/mlxsys", "build", "--profile", "release", "--out-dir", outDir())
}

// Clean removes the build outputs.
func Clean() error {
	return sh.Rm("bin")
}

func outDir() string {
	if dir := os.Getenv("MLXSYS_OUT_DIR"); dir != "" {
		return dir
	}
	return "mlx"
}
