package support

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("IPAM_TEST_ENV", "value")
	if got := GetEnv("IPAM_TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("GetEnv returned %s, want value", got)
	}

	if got := GetEnv("IPAM_TEST_ENV_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("GetEnv returned %s, want fallback", got)
	}
}
