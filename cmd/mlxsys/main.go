package main

import "github.com/goplus/mlxsys/cmd/mlxsys/internal"

func main() {
	internal.Execute()
}
