//go:build !accelerate

package config

const defaultAccelerate = false
