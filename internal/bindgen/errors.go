package bindgen

import "fmt"

// BindingGenerationError reports a header that is missing or cannot be
// parsed. Line is zero when the error is not tied to a position.
type BindingGenerationError struct {
	Path string
	Line int
	Err  error
}

func (e *BindingGenerationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("bindgen: %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("bindgen: %s: %v", e.Path, e.Err)
}

func (e *BindingGenerationError) Unwrap() error {
	return e.Err
}

func errorf(path string, line int, format string, args ...any) *BindingGenerationError {
	return &BindingGenerationError{Path: path, Line: line, Err: fmt.Errorf(format, args...)}
}
