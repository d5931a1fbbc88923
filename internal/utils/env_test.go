package utils

import (
	"os"
	"testing"
)

func TestSafeEnv(t *testing.T) {
	const key = "_QUIZADMIN_TEST_SAFEENV"
	os.Unsetenv(key)
	if got := SafeEnv(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	os.Setenv(key, "value")
	if got := SafeEnv(key, "fallback"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
	os.Setenv(key, "  padded \n")
	if got := SafeEnv(key, "fallback"); got != "padded" {
		t.Fatalf("expected trimmed 'padded', got %q", got)
	}
	os.Setenv(key, "   ")
	if got := SafeEnv(key, "fallback"); got != "fallback" {
		t.Fatalf("blank value should fall back, got %q", got)
	}
}
