package buildsys

import (
	"fmt"
	"os/exec"

	"github.com/qiniu/x/errors"
)

// Tool describes an external program a build step depends on.
type Tool struct {
	// Name is the binary name or path (e.g. "cmake").
	Name string
	// Alternatives can satisfy the requirement when Name is missing.
	Alternatives []string
	// Purpose is shown in the error when the tool is missing.
	Purpose string
}

// LookPath returns the path of the first available candidate.
func (t Tool) LookPath() (string, error) {
	for _, name := range append([]string{t.Name}, t.Alternatives...) {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	if t.Purpose != "" {
		return "", fmt.Errorf("%s not found in PATH (required for: %s)", t.Name, t.Purpose)
	}
	return "", fmt.Errorf("%s not found in PATH", t.Name)
}

// CheckTools verifies all tools are available and reports every missing one.
func CheckTools(tools ...Tool) error {
	var errs errors.List
	for _, t := range tools {
		if _, err := t.LookPath(); err != nil {
			errs.Add(err)
		}
	}
	return errs.ToError()
}
