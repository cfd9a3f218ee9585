package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Database.Path != "premium.db" {
		t.Errorf("Database.Path = %q, want premium.db", cfg.Database.Path)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Reconciler.SweepInterval != time.Hour {
		t.Errorf("SweepInterval = %s, want 1h", cfg.Reconciler.SweepInterval)
	}
	if cfg.Reconciler.MonthlyCoins != 1000 {
		t.Errorf("MonthlyCoins = %d, want 1000", cfg.Reconciler.MonthlyCoins)
	}
	if cfg.Formance.LedgerName != "referral-commissions" {
		t.Errorf("LedgerName = %q, want referral-commissions", cfg.Formance.LedgerName)
	}
	if cfg.Referral.JournalEnabled {
		t.Error("journal should be disabled by default")
	}
	if cfg.Gateway.WebhookTolerance != 5*time.Minute {
		t.Errorf("WebhookTolerance = %s, want 5m", cfg.Gateway.WebhookTolerance)
	}
	if cfg.Gateway.WebhookSecret != "" {
		t.Errorf("WebhookSecret = %q, want empty", cfg.Gateway.WebhookSecret)
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"HTTP_PORT":                "9090",
		"ADMIN_TOKEN":              "t0ken",
		"RECONCILE_SWEEP_INTERVAL": "15m",
		"GATEWAY_SECRET_KEY":       "sk_test_123",
		"GATEWAY_TIMEOUT":          "5s",
		"GATEWAY_WEBHOOK_SECRET":   "whsec_123",
		"REFERRAL_JOURNAL_ENABLED": "true",
		"FORMANCE_STACK_URL":       "http://localhost:8080",
		"FORMANCE_CLIENT_ID":       "client",
		"FORMANCE_CLIENT_SECRET":   "secret",
	})
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.AdminToken != "t0ken" {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Reconciler.SweepInterval != 15*time.Minute {
		t.Errorf("SweepInterval = %s, want 15m", cfg.Reconciler.SweepInterval)
	}
	if cfg.Gateway.WebhookSecret != "whsec_123" {
		t.Errorf("WebhookSecret = %q, want whsec_123", cfg.Gateway.WebhookSecret)
	}
	if cfg.Gateway.SecretKey != "sk_test_123" || cfg.Gateway.Timeout != 5*time.Second {
		t.Errorf("unexpected gateway config %+v", cfg.Gateway)
	}
	if cfg.Formance.ClientID != "client" {
		t.Errorf("Formance.ClientID = %q, want client", cfg.Formance.ClientID)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad duration", map[string]string{"RECONCILE_SWEEP_INTERVAL": "soon"}, "failed to parse config"},
		{"zero interval", map[string]string{"RECONCILE_SWEEP_INTERVAL": "0s"}, "RECONCILE_SWEEP_INTERVAL"},
		{"negative coins", map[string]string{"RECONCILE_MONTHLY_COINS": "-1"}, "RECONCILE_MONTHLY_COINS"},
		{"zero body limit", map[string]string{"WEBHOOK_MAX_BODY_KB": "0"}, "WEBHOOK_MAX_BODY_KB"},
		{"zero webhook tolerance", map[string]string{"GATEWAY_WEBHOOK_TOLERANCE": "0s"}, "GATEWAY_WEBHOOK_TOLERANCE"},
		{"negative retries", map[string]string{"GATEWAY_MAX_RETRIES": "-1"}, "GATEWAY_MAX_RETRIES"},
		{"journal without credentials", map[string]string{"REFERRAL_JOURNAL_ENABLED": "true"}, "FORMANCE_STACK_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.env)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
