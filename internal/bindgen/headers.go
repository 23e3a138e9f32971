package bindgen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HeaderSet is the fixed list of native headers the bindings are generated
// from, plus the single include search path they are resolved under.
type HeaderSet struct {
	Headers    []string
	IncludeDir string
}

// DefaultHeaderSet returns the mlx-c headers under the native source root:
// the general API, linear algebra, error reporting and the internal
// transform-execution ABI.
func DefaultHeaderSet(root string) HeaderSet {
	return HeaderSet{
		Headers: []string{
			filepath.Join(root, "mlx", "c", "mlx.h"),
			filepath.Join(root, "mlx", "c", "linalg.h"),
			filepath.Join(root, "mlx", "c", "error.h"),
			filepath.Join(root, "mlx", "c", "transforms_impl.h"),
		},
		IncludeDir: root,
	}
}

// Validate checks that the include directory and every header exist.
func (hs HeaderSet) Validate() error {
	if len(hs.Headers) == 0 {
		return errorf(hs.IncludeDir, 0, "empty header set")
	}
	info, err := os.Stat(hs.IncludeDir)
	if err != nil {
		return &BindingGenerationError{Path: hs.IncludeDir, Err: fmt.Errorf("include directory: %w", err)}
	}
	if !info.IsDir() {
		return errorf(hs.IncludeDir, 0, "include path is not a directory")
	}
	for _, h := range hs.Headers {
		info, err := os.Stat(h)
		if err != nil {
			return &BindingGenerationError{Path: h, Err: fmt.Errorf("header not found: %w", err)}
		}
		if info.IsDir() {
			return errorf(h, 0, "header is a directory")
		}
	}
	return nil
}

// includeName returns how header is spelled in an #include directive
// relative to the include directory.
func (hs HeaderSet) includeName(header string) string {
	if rel, err := filepath.Rel(hs.IncludeDir, header); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(header)
}

func (hs HeaderSet) abs() (HeaderSet, error) {
	dir, err := filepath.Abs(hs.IncludeDir)
	if err != nil {
		return hs, &BindingGenerationError{Path: hs.IncludeDir, Err: err}
	}
	out := HeaderSet{IncludeDir: dir, Headers: make([]string, len(hs.Headers))}
	for i, h := range hs.Headers {
		if out.Headers[i], err = filepath.Abs(h); err != nil {
			return hs, &BindingGenerationError{Path: h, Err: err}
		}
	}
	return out, nil
}
