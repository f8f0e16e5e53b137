package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"DATABASE_URL", "STORE_DRIVER", "ELIGIBILITY_ORACLE", "REMINDER_SCHEDULE", "PORT", "SERVER_PORT",
		"GEMINI_TIMEOUT_SECONDS", "REDEMPTION_HOLD_TTL_MINUTES", "HOLD_SWEEP_SCHEDULE"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.StoreDriver != "memory" {
		t.Fatalf("expected memory store without DATABASE_URL, got %q", cfg.StoreDriver)
	}
	if cfg.EligibilityOracle != "rules" {
		t.Fatalf("expected rules oracle by default, got %q", cfg.EligibilityOracle)
	}
	if cfg.ReminderSchedule != "0 8 * * *" {
		t.Fatalf("unexpected reminder schedule %q", cfg.ReminderSchedule)
	}
	if cfg.EventExchange != "herodrop.events" {
		t.Fatalf("unexpected exchange %q", cfg.EventExchange)
	}
	if cfg.GeminiTimeoutSecs != 30 || cfg.RedemptionHoldTTLMinutes != 15 || cfg.HoldSweepSchedule != "*/5 * * * *" {
		t.Fatalf("unexpected timeouts: model=%ds hold=%dm sweep=%q", cfg.GeminiTimeoutSecs, cfg.RedemptionHoldTTLMinutes, cfg.HoldSweepSchedule)
	}
}

func TestLoadConfig_PortAliasWins(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "9100")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9100" {
		t.Fatalf("expected PORT to override SERVER_PORT, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_CoercesInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "PROMPT_RATE_LIMIT_PER_MINUTE", "-4")
	setEnvWithCleanup(t, "SMS_PROVIDER", "pigeon")
	setEnvWithCleanup(t, "ELIGIBILITY_ORACLE", "MODEL")
	setEnvWithCleanup(t, "GEMINI_TIMEOUT_SECONDS", "0")
	setEnvWithCleanup(t, "REDEMPTION_HOLD_TTL_MINUTES", "1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PromptRateLimitPerMinute != 30 {
		t.Fatalf("expected rate limit coerced to 30, got %d", cfg.PromptRateLimitPerMinute)
	}
	if cfg.SMSProvider != "none" {
		t.Fatalf("expected unknown provider coerced to none, got %q", cfg.SMSProvider)
	}
	if cfg.EligibilityOracle != "model" {
		t.Fatalf("expected oracle to be normalized to model, got %q", cfg.EligibilityOracle)
	}
	if cfg.GeminiTimeoutSecs != 30 {
		t.Fatalf("expected model timeout coerced to 30, got %d", cfg.GeminiTimeoutSecs)
	}
	if cfg.RedemptionHoldTTLMinutes != 15 {
		t.Fatalf("expected hold ttl coerced to 15, got %d", cfg.RedemptionHoldTTLMinutes)
	}
}

func TestSMSCredentialsPresent(t *testing.T) {
	cfg := Config{SMSProvider: "africastalking", AfricasTalkingUsername: "sandbox"}
	if cfg.SMSCredentialsPresent() {
		t.Fatalf("expected missing api key to report no credentials")
	}
	cfg.AfricasTalkingAPIKey = "key"
	if !cfg.SMSCredentialsPresent() {
		t.Fatalf("expected credentials to be present")
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
