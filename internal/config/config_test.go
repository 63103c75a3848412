package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Checkout.UnitAmount != 400 || cfg.Checkout.Currency != "brl" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Products.Test != "prod_SnibIHbIfakhda" || cfg.Products.Production != "prod_Sn4hQJD9yvuW8H" {
		t.Fatalf("unexpected products %+v", cfg.Products)
	}
	if cfg.Checkout.AllowUnpaidPreview {
		t.Fatalf("preview must be off by default")
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
server:
  port: "9090"
  public_base_url: https://quiz.example.org
stripe:
  secret_key: from-file
  timeout: 3s
checkout:
  allow_unpaid_preview: true
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STRIPE_SECRET_KEY", "from-env")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.PublicBaseURL != "https://quiz.example.org" {
		t.Fatalf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Stripe.SecretKey != "from-env" {
		t.Fatalf("expected environment to win, got %q", cfg.Stripe.SecretKey)
	}
	if cfg.Server.DeploymentEnv != "production" {
		t.Fatalf("expected APP_ENV bound, got %q", cfg.Server.DeploymentEnv)
	}
	if got := TTLDuration(cfg.Stripe.Timeout, time.Second); got != 3*time.Second {
		t.Fatalf("unexpected timeout %v", got)
	}
	if !cfg.Checkout.AllowUnpaidPreview {
		t.Fatalf("expected preview flag from file")
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty: %v", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("invalid: %v", got)
	}
}
