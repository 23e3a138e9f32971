package nativebuild

import (
	"errors"
	"fmt"

	"github.com/goplus/mlxsys/pkgs/buildsys"
)

// NativeBuildError reports a failed or impossible native build. Output holds
// the toolchain's diagnostic text verbatim.
type NativeBuildError struct {
	Step   string
	Err    error
	Output string
}

func (e *NativeBuildError) Error() string {
	msg := fmt.Sprintf("native build failed at %s: %v", e.Step, e.Err)
	if e.Output != "" {
		msg += "\n\nBuild output:\n" + e.Output
	}
	return msg
}

func (e *NativeBuildError) Unwrap() error {
	return e.Err
}

func stepError(step string, err error) *NativeBuildError {
	e := &NativeBuildError{Step: step, Err: err}
	var runErr *buildsys.RunError
	if errors.As(err, &runErr) {
		e.Output = runErr.Stderr
	}
	return e
}
