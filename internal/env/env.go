package env

import (
	"os"
	"path/filepath"

	"github.com/goplus/mlxsys/internal/fsutil"
)

// WorkDir returns the per-user directory holding native build outputs when
// no output directory is configured.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".mlxsys"), nil
}

// OutDir returns dir made absolute, or WorkDir when dir is empty. A
// leading "~" is expanded. The directory is created if needed.
func OutDir(dir string) (string, error) {
	dir, err := fsutil.ExpandHome(dir)
	if err != nil {
		return "", err
	}
	if dir == "" {
		wd, err := WorkDir()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
