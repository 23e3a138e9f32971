// Package config resolves the native build configuration from compile-time
// flags and an injected environment.
package config

import (
	"fmt"
	"strings"
)

// Environment variables overriding the compile-time capability defaults.
const (
	EnvEnableMetal      = "MLX_RS_ENABLE_METAL"
	EnvEnableAccelerate = "MLX_RS_ENABLE_ACCELERATE"
)

// InstallPrefix is the CMake install prefix, relative to the build tree.
const InstallPrefix = "."

// BuildType is the CMake build type.
type BuildType int

const (
	Release BuildType = iota
	Debug
)

func (t BuildType) String() string {
	if t == Debug {
		return "Debug"
	}
	return "Release"
}

// Profile is the optimization profile the consuming program is compiled with.
type Profile int

const (
	ProfileRelease Profile = iota
	ProfileDebug
)

func (p Profile) String() string {
	if p == ProfileDebug {
		return "debug"
	}
	return "release"
}

// ParseProfile parses "debug" or "release", case-insensitively.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(s) {
	case "debug":
		return ProfileDebug, nil
	case "release":
		return ProfileRelease, nil
	}
	return ProfileRelease, fmt.Errorf("unknown profile %q (want debug or release)", s)
}

// CompileFlags holds the compile profile and capability defaults.
type CompileFlags struct {
	Profile    Profile
	Metal      bool
	Accelerate bool
}

// DefaultCompileFlags returns the flags selected by the build tags of the
// running binary: "debug", "metal" and "accelerate".
func DefaultCompileFlags() CompileFlags {
	return CompileFlags{
		Profile:    defaultProfile,
		Metal:      defaultMetal,
		Accelerate: defaultAccelerate,
	}
}

// Env is a read-only snapshot of environment variables.
type Env map[string]string

// Lookup returns the value of key and whether it is present.
func (e Env) Lookup(key string) (string, bool) {
	v, ok := e[key]
	return v, ok
}

// BuildConfiguration is the resolved configuration driving the native build
// and the link step. It is a value and never mutated after Resolve.
type BuildConfiguration struct {
	BuildType        BuildType
	EnableMetal      bool
	EnableAccelerate bool
	InstallPrefix    string
}

// Resolve computes the build configuration. It never fails: unknown override
// values fall back to the compile-time default without a diagnostic.
func Resolve(flags CompileFlags, env Env) BuildConfiguration {
	buildType := Release
	if flags.Profile == ProfileDebug {
		buildType = Debug
	}
	return BuildConfiguration{
		BuildType:        buildType,
		EnableMetal:      capability(flags.Metal, env, EnvEnableMetal),
		EnableAccelerate: capability(flags.Accelerate, env, EnvEnableAccelerate),
		InstallPrefix:    InstallPrefix,
	}
}

func capability(def bool, env Env, key string) bool {
	raw, ok := env.Lookup(key)
	if !ok {
		return def
	}
	if v, ok := ParseOverride(raw); ok {
		return v
	}
	return def
}

// ParseOverride parses a boolean override value case-insensitively.
// ok is false for anything outside the recognised tokens.
func ParseOverride(s string) (value, ok bool) {
	switch strings.ToLower(s) {
	case "1", "true", "on", "yes":
		return true, true
	case "0", "false", "off", "no":
		return false, true
	}
	return false, false
}
