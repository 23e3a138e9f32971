//go:build !debug

package config

const defaultProfile = ProfileRelease
