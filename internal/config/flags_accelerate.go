//go:build accelerate

package config

const defaultAccelerate = true
