package config

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := GetConfig()

	if cfg.Pools.Primary != "10.0.0.0/16" || cfg.Pools.CGNAT != "100.64.0.0/10" {
		t.Fatalf("unexpected default pools: %+v", cfg.Pools)
	}
	if cfg.Policy.Reserve != 5 || cfg.Policy.MinPrefix != 20 || cfg.Policy.MaxPrefix != 26 || cfg.Policy.CGNATOffset != 5 {
		t.Fatalf("unexpected default policy: %+v", cfg.Policy)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BackoffMs != 50 {
		t.Fatalf("unexpected default retry: %+v", cfg.Retry)
	}

	if _, err := cfg.AllocatorOptions(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestAllocatorOptionsValidation(t *testing.T) {
	base := GetConfig()

	t.Run("rejects overlapping pools", func(t *testing.T) {
		cfg := base
		cfg.Pools.CGNAT = "10.0.128.0/17"
		if _, err := cfg.AllocatorOptions(); err == nil {
			t.Fatal("overlapping pools accepted")
		}
	})

	t.Run("rejects unparsable pool", func(t *testing.T) {
		cfg := base
		cfg.Pools.Primary = "10.0.0.0"
		if _, err := cfg.AllocatorOptions(); err == nil {
			t.Fatal("bad primary pool accepted")
		}
	})

	t.Run("rejects ipv6 pool", func(t *testing.T) {
		cfg := base
		cfg.Pools.Primary = "2001:db8::/32"
		if _, err := cfg.AllocatorOptions(); err == nil {
			t.Fatal("ipv6 pool accepted")
		}
	})

	t.Run("rejects inverted prefix bounds", func(t *testing.T) {
		cfg := base
		cfg.Policy.MinPrefix = 27
		if _, err := cfg.AllocatorOptions(); err == nil {
			t.Fatal("inverted prefix bounds accepted")
		}
	})
}
