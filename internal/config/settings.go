package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Settings holds the ambient options of the driver: where the native
// sources live, where outputs go and which tools to run.
// Precedence, lowest first: defaults, config file, environment, CLI flags.
type Settings struct {
	SourceDir       string `env:"MLXSYS_SOURCE_DIR" json:"source_dir" yaml:"source_dir" toml:"source_dir"`
	OutDir          string `env:"MLXSYS_OUT_DIR" json:"out_dir" yaml:"out_dir" toml:"out_dir"`
	Package         string `env:"MLXSYS_PACKAGE" json:"package" yaml:"package" toml:"package"`
	CMake           string `env:"MLXSYS_CMAKE" json:"cmake" yaml:"cmake" toml:"cmake"`
	Generator       string `env:"MLXSYS_GENERATOR" json:"generator" yaml:"generator" toml:"generator"`
	CC              string `env:"CC" json:"cc" yaml:"cc" toml:"cc"`
	BuildConstraint string `env:"MLXSYS_BUILD_CONSTRAINT" json:"build_constraint" yaml:"build_constraint" toml:"build_constraint"`
	Debug           bool   `env:"MLXSYS_DEBUG" json:"debug" yaml:"debug" toml:"debug"`
}

// NoConstraint as the build constraint setting drops the //go:build line
// from generated files. Empty file and environment values keep the default.
const NoConstraint = "none"

// Constraint returns the //go:build expression for generated files, or ""
// when the setting is NoConstraint.
func (s Settings) Constraint() string {
	c := strings.TrimSpace(s.BuildConstraint)
	if strings.EqualFold(c, NoConstraint) {
		return ""
	}
	return c
}

// DefaultSettings returns the built-in defaults. OutDir is left empty and
// filled in by the caller from the user cache directory.
func DefaultSettings() Settings {
	return Settings{
		SourceDir:       filepath.Join("src", "mlx-c"),
		Package:         "mlx",
		CMake:           "cmake",
		CC:              "cc",
		BuildConstraint: "darwin",
	}
}

// LoadSettings layers an optional config file and the environment on top of
// the defaults.
func LoadSettings(file string, e Env) (Settings, error) {
	s := DefaultSettings()
	if file != "" {
		fs, err := LoadFile(file)
		if err != nil {
			return s, fmt.Errorf("load config %s: %w", file, err)
		}
		s.overlay(fs)
	}
	if err := env.ParseWithOptions(&s, env.Options{Environment: e}); err != nil {
		return s, fmt.Errorf("parse environment: %w", err)
	}
	return s, nil
}

// LoadFile reads a settings file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func LoadFile(path string) (Settings, error) {
	var s Settings
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &s)
	case ".json":
		err = json.Unmarshal(b, &s)
	case ".toml":
		err = toml.Unmarshal(b, &s)
	default:
		return s, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return s, err
}

func (s *Settings) overlay(o Settings) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&s.SourceDir, o.SourceDir)
	set(&s.OutDir, o.OutDir)
	set(&s.Package, o.Package)
	set(&s.CMake, o.CMake)
	set(&s.Generator, o.Generator)
	set(&s.CC, o.CC)
	set(&s.BuildConstraint, o.BuildConstraint)
	s.Debug = s.Debug || o.Debug
}

// OSEnv snapshots the process environment.
func OSEnv() Env {
	e := make(Env)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			e[k] = v
		}
	}
	return e
}

// ReadEnvFile parses a dotenv file.
func ReadEnvFile(path string) (Env, error) {
	m, err := godotenv.Read(path)
	if err != nil {
		return nil, err
	}
	return Env(m), nil
}

// Merge returns a new Env holding base with over applied on top.
func Merge(base, over Env) Env {
	out := make(Env, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
