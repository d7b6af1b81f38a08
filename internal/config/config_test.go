package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BOOKING_TIME_SLOTS", "")
	t.Setenv("STORE_TIMEOUT", "")
	t.Setenv("OPERATOR_EMAILS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.IsProduction() {
		t.Fatalf("development must not be treated as production")
	}
	if len(cfg.BookingTimeSlots) != 6 || cfg.BookingTimeSlots[1] != "10:00 ص" {
		t.Fatalf("expected default slots, got %v", cfg.BookingTimeSlots)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("expected default store timeout, got %s", cfg.StoreTimeout)
	}
	if cfg.OperatorEmails != nil {
		t.Fatalf("expected no operator emails, got %v", cfg.OperatorEmails)
	}
	if cfg.HandoffLocale != "ar" {
		t.Fatalf("expected arabic hand-off by default, got %s", cfg.HandoffLocale)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "Production")
	t.Setenv("BOOKING_TIME_SLOTS", "08:00, 09:00 ,,")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("OPERATOR_EMAILS", "ops@example.com,desk@example.com")
	t.Setenv("ALLOW_PLACEHOLDER_IMAGES", "false")
	t.Setenv("BOOKING_RATE_LIMIT_RPS", "2.5")
	t.Setenv("MEDIA_PUBLIC_BASE_URL", "https://cdn.example.com/")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if len(cfg.BookingTimeSlots) != 2 || cfg.BookingTimeSlots[1] != "09:00" {
		t.Fatalf("unexpected slots %v", cfg.BookingTimeSlots)
	}
	if cfg.StoreTimeout != 750*time.Millisecond {
		t.Fatalf("expected store timeout override, got %s", cfg.StoreTimeout)
	}
	if len(cfg.OperatorEmails) != 2 {
		t.Fatalf("expected two operator emails, got %v", cfg.OperatorEmails)
	}
	if cfg.AllowPlaceholderImages {
		t.Fatalf("expected placeholder images disabled")
	}
	if cfg.BookingRateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.BookingRateLimitRPS)
	}
	if cfg.MediaPublicBaseURL != "https://cdn.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.MediaPublicBaseURL)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "lots")
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")
	cfg := Load()
	if cfg.OutboxBatchSize != 25 {
		t.Fatalf("expected default batch size, got %d", cfg.OutboxBatchSize)
	}
	if cfg.OutboxPollInterval != 2*time.Second {
		t.Fatalf("expected default poll interval, got %s", cfg.OutboxPollInterval)
	}
}
