// Package bindgen generates cgo declarations for the mlx-c headers.
//
// Headers are preprocessed, parsed and type checked as one translation
// unit by modernc.org/cc/v4, configured from the host C compiler. The result is a single Go file whose preamble includes the
// headers, with Go aliases for every C typedef, constants for enumerators
// and numeric macros, and a thin wrapper for every callable function.
package bindgen

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/goplus/mlxsys/internal/fsutil"
	"github.com/goplus/mlxsys/internal/log"
)

// DefaultPrefixes are stripped from C names when deriving Go names.
var DefaultPrefixes = []string{"mlx_"}

// Generator turns a HeaderSet into Go bindings.
type Generator struct {
	// Package is the Go package clause of the output. Defaults to "mlx".
	Package string
	// BuildConstraint, if set, is emitted as a //go:build line.
	BuildConstraint string
	// Prefixes are matched case-insensitively and stripped from C names.
	// A nil slice means DefaultPrefixes.
	Prefixes []string
	// Check compiles every header with CC before parsing.
	Check bool
	// CC is the compiler used by Check. Parsing takes its predefined
	// macros and system include paths from $CC, cc or gcc.
	CC string
}

// Bindings is the generated Go source and a summary of what it contains.
type Bindings struct {
	Package   string
	Source    []byte
	Types     int
	Constants int
	Functions int
	// Skipped lists declarations with no cgo form, as "name: reason".
	Skipped []string
}

// Generate reads the headers in hs and produces bindings. Identical headers
// and include path produce byte-identical output.
func (g *Generator) Generate(ctx context.Context, hs HeaderSet) (*Bindings, error) {
	logger := log.FromCtx(ctx)
	if err := hs.Validate(); err != nil {
		return nil, err
	}
	if g.Check {
		if err := g.check(ctx, hs); err != nil {
			return nil, err
		}
	}

	hs, err := hs.abs()
	if err != nil {
		return nil, err
	}
	tr, err := translate(hs)
	if err != nil {
		return nil, err
	}

	e := newEmitter(g, hs, tr.files)
	src, err := e.emit(tr.decls, tr.macros)
	if err != nil {
		return nil, err
	}
	out, err := format.Source(src)
	if err != nil {
		return nil, fmt.Errorf("bindgen: format generated source: %w", err)
	}
	b := &Bindings{
		Package:   e.pkg(),
		Source:    out,
		Types:     e.types,
		Constants: e.consts,
		Functions: e.funcs,
		Skipped:   e.skipped,
	}
	logger.Debug().
		Int("files", len(tr.files)).
		Int("types", b.Types).
		Int("constants", b.Constants).
		Int("functions", b.Functions).
		Int("skipped", len(b.Skipped)).
		Msg("bindings generated")
	return b, nil
}

// WriteFile writes the bindings to path atomically, creating parent
// directories as needed.
func (b *Bindings) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, b.Source, 0o644)
}

// check runs the C compiler in syntax-only mode over each header so that
// errors are reported by the compiler itself.
func (g *Generator) check(ctx context.Context, hs HeaderSet) error {
	cc := g.CC
	if cc == "" {
		cc = "cc"
	}
	if _, err := exec.LookPath(cc); err != nil {
		return fmt.Errorf("bindgen: header check: %w", err)
	}
	for _, h := range hs.Headers {
		var out bytes.Buffer
		cmd := exec.CommandContext(ctx, cc, "-fsyntax-only", "-x", "c", "-I", hs.IncludeDir, "-")
		cmd.Stdin = strings.NewReader(fmt.Sprintf("#include \"%s\"\n", hs.includeName(h)))
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := cmd.Run(); err != nil {
			return &BindingGenerationError{
				Path: h,
				Err:  fmt.Errorf("%s -fsyntax-only: %w\n%s", cc, err, strings.TrimSpace(out.String())),
			}
		}
	}
	return nil
}
