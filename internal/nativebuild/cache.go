package nativebuild

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goplus/mlxsys/internal/config"
)

// Output directory layout:
//
//	outDir/
//	  .mlxsys-cache.json   # fingerprint of the last successful build
//	  .lock                # serialises concurrent builds
//	  build/               # CMake build tree, install prefix "."
//	    lib/
//	    include/
const cacheFile = ".mlxsys-cache.json"

// buildCache records the last successful build of an output directory.
type buildCache struct {
	Fingerprint string    `json:"fingerprint"`
	BuildType   string    `json:"build_type"`
	Metal       bool      `json:"metal"`
	Accelerate  bool      `json:"accelerate"`
	BuildTime   time.Time `json:"build_time"`
}

func loadBuildCache(path string) (*buildCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache buildCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func saveBuildCache(path string, cache *buildCache) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// fingerprint identifies a build by its configuration, the source location
// and the newest modification time in the source tree.
func fingerprint(sourceDir string, cfg config.BuildConfiguration) (string, error) {
	newest, err := newestModTime(sourceDir)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	fmt.Fprintf(h, "source=%s\n", sourceDir)
	fmt.Fprintf(h, "build_type=%s\n", cfg.BuildType)
	fmt.Fprintf(h, "metal=%t\naccelerate=%t\n", cfg.EnableMetal, cfg.EnableAccelerate)
	fmt.Fprintf(h, "prefix=%s\n", cfg.InstallPrefix)
	fmt.Fprintf(h, "mtime=%d\n", newest.UnixNano())
	return hex.EncodeToString(h.Sum(nil)), nil
}

func newestModTime(root string) (time.Time, error) {
	var newest time.Time
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return newest, err
}
