package utils

import (
	"os"
	"strings"
)

// SafeEnv returns the value of key with surrounding whitespace stripped, or
// fallback when the variable is unset or blank. Trailing spaces from .env
// files would otherwise end up in listen addresses and DSNs.
func SafeEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
