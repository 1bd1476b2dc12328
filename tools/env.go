// Package tools holds small helpers shared by the CLI commands.
package tools

import "os"

// GetenvDefault reads an environment variable, falling back to defaultValue
// when it is unset or empty.
func GetenvDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
