// Package config provides small environment-variable helpers shared by
// musium's command-line entrypoints.
package config

import "os"

// Env returns the value of the environment variable key, or def if unset.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
