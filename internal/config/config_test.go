package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "OPENING_BONUS_MINOR")
	unsetEnvWithCleanup(t, "INBOX_RETENTION_DAYS")
	unsetEnvWithCleanup(t, "LEDGER_EVENT_QUEUE")
	unsetEnvWithCleanup(t, "EVENTS_EXCHANGE")
	unsetEnvWithCleanup(t, "OPEN_ACCOUNT_RATE_LIMIT_PER_MINUTE")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.OpeningBonusMinor != 5000 {
		t.Fatalf("expected default OpeningBonusMinor 5000, got %d", cfg.OpeningBonusMinor)
	}
	if cfg.InboxRetentionDays != 30 {
		t.Fatalf("expected default InboxRetentionDays 30, got %d", cfg.InboxRetentionDays)
	}
	if cfg.LedgerEventQueue != "account_service.ledger_postings" {
		t.Fatalf("unexpected default LedgerEventQueue %q", cfg.LedgerEventQueue)
	}
	if cfg.EventsExchange != "bank.events" {
		t.Fatalf("unexpected default EventsExchange %q", cfg.EventsExchange)
	}
	if cfg.OpenAccountRateLimitPerMin != 10 {
		t.Fatalf("expected default OpenAccountRateLimitPerMin 10, got %d", cfg.OpenAccountRateLimitPerMin)
	}
}

func TestLoadConfig_UsesAccountServiceInternalAPIKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "INTERNAL_API_KEY")
	setEnvWithCleanup(t, "ACCOUNT_SERVICE_INTERNAL_API_KEY", "alias-only-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "alias-only-key" {
		t.Fatalf("expected InternalAPIKey from alias env var, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_ReadsAuthAudienceAndIssuer(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "AUTH_AUDIENCE", "account-service")
	setEnvWithCleanup(t, "AUTH_ISSUER", "https://id.example.com/")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AuthAudience != "account-service" {
		t.Fatalf("expected AuthAudience from env, got %q", cfg.AuthAudience)
	}
	if cfg.AuthIssuer != "https://id.example.com/" {
		t.Fatalf("expected AuthIssuer from env, got %q", cfg.AuthIssuer)
	}
}

func TestLoadConfig_NegativeRetentionFallsBackToDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "INBOX_RETENTION_DAYS", "-5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InboxRetentionDays != 30 {
		t.Fatalf("expected retention fallback to 30 days, got %d", cfg.InboxRetentionDays)
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
