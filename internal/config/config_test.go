package config

import "testing"

func validConfig() *Config {
	return &Config{
		GinMode:            "debug",
		DefaultJPEGQuality: 85,
		QueueRedisURL:      "redis://127.0.0.1:6379/0",
	}
}

func TestValidateAcceptsDebugWithoutCredentials(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestValidateRequiresCredentialsInRelease(t *testing.T) {
	cfg := validConfig()
	cfg.GinMode = "release"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing credentials in release mode")
	}

	cfg.AppUsername = "admin"
	cfg.AppPasswordHash = "$2a$10$hash"
	cfg.SessionSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestValidateRequiresRedisURLInDistributedMode(t *testing.T) {
	cfg := validConfig()
	cfg.DistributedMode = true
	cfg.QueueRedisURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis url")
	}
}

func TestValidateRejectsOutOfRangeQuality(t *testing.T) {
	for _, q := range []int{0, -1, 101} {
		cfg := validConfig()
		cfg.DefaultJPEGQuality = q
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected error for quality %d", q)
		}
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PX_TEST_STR", "value")
	t.Setenv("PX_TEST_INT", "42")
	t.Setenv("PX_TEST_BAD_INT", "abc")
	t.Setenv("PX_TEST_BOOL", "true")

	if got := getEnv("PX_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("getEnv = %q", got)
	}
	if got := getEnv("PX_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("getEnv fallback = %q", got)
	}
	if got := getEnvAsInt("PX_TEST_INT", 0); got != 42 {
		t.Fatalf("getEnvAsInt = %d", got)
	}
	if got := getEnvAsInt("PX_TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("getEnvAsInt fallback = %d", got)
	}
	if got := getEnvAsInt64("PX_TEST_INT", 0); got != 42 {
		t.Fatalf("getEnvAsInt64 = %d", got)
	}
	if !getEnvAsBool("PX_TEST_BOOL", false) {
		t.Fatal("getEnvAsBool = false, want true")
	}
	if getEnvAsBool("PX_TEST_MISSING", false) {
		t.Fatal("getEnvAsBool fallback = true, want false")
	}
}
