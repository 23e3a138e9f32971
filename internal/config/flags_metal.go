//go:build metal

package config

const defaultMetal = true
