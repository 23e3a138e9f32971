package link

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/goplus/mlxsys/internal/fsutil"
)

// CgoFile renders directives as a Go source file carrying one
// "#cgo LDFLAGS" line per directive, in order.
type CgoFile struct {
	Package string
	// BuildConstraint restricts the file to matching builds, e.g. "darwin".
	// Frameworks only exist on Apple platforms.
	BuildConstraint string
}

// Render returns the file contents.
func (f CgoFile) Render(ds []Directive) []byte {
	var b bytes.Buffer
	b.WriteString("// Code generated by mlxsys. DO NOT EDIT.\n\n")
	if f.BuildConstraint != "" {
		fmt.Fprintf(&b, "//go:build %s\n\n", f.BuildConstraint)
	}
	fmt.Fprintf(&b, "package %s\n\n", f.Package)
	for _, d := range ds {
		fmt.Fprintf(&b, "// #cgo LDFLAGS: %s\n", strings.Join(quoteFlags(d.Flags()), " "))
	}
	b.WriteString("import \"C\"\n")
	return b.Bytes()
}

// WriteFile writes the rendered directives to path atomically.
func (f CgoFile) WriteFile(path string, ds []Directive) error {
	return fsutil.WriteFileAtomic(path, f.Render(ds), 0o644)
}

// Format selects how Print renders directives.
type Format string

const (
	// FormatFlags prints every flag on one line, suitable for CGO_LDFLAGS.
	FormatFlags Format = "flags"
	// FormatLines prints one "kind=value" directive per line.
	FormatLines Format = "lines"
)

// Print writes directives to w in the given format.
func Print(w io.Writer, ds []Directive, format Format) error {
	switch format {
	case FormatFlags, "":
		_, err := fmt.Fprintln(w, strings.Join(quoteFlags(LDFlags(ds)), " "))
		return err
	case FormatLines:
		for _, d := range ds {
			if _, err := fmt.Fprintln(w, d); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown link format %q", format)
}

// quoteFlags quotes flags containing spaces the way cgo splits them.
func quoteFlags(flags []string) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		if strings.ContainsAny(f, " \t'\"") {
			f = "'" + strings.ReplaceAll(f, "'", `'"'"'`) + "'"
		}
		out[i] = f
	}
	return out
}
