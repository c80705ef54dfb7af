package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
database:
  path: "test.db"
pricing:
  slot_price: 500000
payment:
  enabled: true
  pin: "secret"
  create_url: "https://gw.example.com/create"
  verify_url: "https://gw.example.com/verify"
  redirect_base: "https://gw.example.com/pay"
  callback_url: "https://app.example.com/payment/verify"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != "test.db" {
		t.Errorf("expected database path test.db, got %s", cfg.Database.Path)
	}
	if cfg.Payment.Pin != "secret" {
		t.Errorf("expected payment pin secret, got %s", cfg.Payment.Pin)
	}
	if cfg.Pricing.SlotPrice != 500000 {
		t.Errorf("expected slot price 500000, got %d", cfg.Pricing.SlotPrice)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("TEST_PAYMENT_PIN", "from-env")

	yamlContent := `
database:
  path: "test.db"
payment:
  enabled: false
  pin: "${TEST_PAYMENT_PIN}"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Payment.Pin != "from-env" {
		t.Errorf("expected pin from environment, got %s", cfg.Payment.Pin)
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		c := Config{Database: DatabaseConfig{Path: "path"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "bad open clock",
			mutate:  func(c *Config) { c.Schedule.Open = "25:99" },
			wantErr: true,
		},
		{
			name:    "bad rest day",
			mutate:  func(c *Config) { c.Schedule.RestDays = []string{"Caturday"} },
			wantErr: true,
		},
		{
			name:    "zero horizon",
			mutate:  func(c *Config) { c.Schedule.HorizonDays = -1 },
			wantErr: true,
		},
		{
			name: "payment enabled without pin",
			mutate: func(c *Config) {
				c.Payment.Enabled = true
				c.Payment.CreateURL = "u"
				c.Payment.VerifyURL = "u"
				c.Payment.RedirectBase = "u"
				c.Payment.CallbackURL = "u"
				c.Pricing.SlotPrice = 100
			},
			wantErr: true,
		},
		{
			name: "payment enabled without price",
			mutate: func(c *Config) {
				c.Payment.Enabled = true
				c.Payment.Pin = "p"
				c.Payment.CreateURL = "u"
				c.Payment.VerifyURL = "u"
				c.Payment.RedirectBase = "u"
				c.Payment.CallbackURL = "u"
			},
			wantErr: true,
		},
		{
			name:    "telegram enabled without token",
			mutate:  func(c *Config) { c.Telegram.Enabled = true },
			wantErr: true,
		},
		{
			name:    "google enabled without sheet id",
			mutate:  func(c *Config) { c.Google.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Schedule.Open != "10:00" || cfg.Schedule.Close != "22:00" {
		t.Errorf("expected default hours 10:00-22:00, got %s-%s", cfg.Schedule.Open, cfg.Schedule.Close)
	}
	if cfg.Schedule.SlotMinutes != 45 {
		t.Errorf("expected default slot minutes 45, got %d", cfg.Schedule.SlotMinutes)
	}
	if cfg.Schedule.HorizonDays != 7 {
		t.Errorf("expected default horizon 7, got %d", cfg.Schedule.HorizonDays)
	}
	if len(cfg.Schedule.RestDays) != 2 {
		t.Errorf("expected two default rest days, got %v", cfg.Schedule.RestDays)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("expected default session TTL 24h, got %s", cfg.Session.TTL)
	}
	if cfg.Payment.Timeout != 10*time.Second {
		t.Errorf("expected default payment timeout 10s, got %s", cfg.Payment.Timeout)
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("10:00")
	if err != nil || h != 10 || m != 0 {
		t.Errorf("ParseClock(10:00) = %d:%d, %v", h, m, err)
	}
	if _, _, err := ParseClock("not a clock"); err == nil {
		t.Errorf("expected error for garbage clock")
	}
}

func TestParseWeekday(t *testing.T) {
	day, err := ParseWeekday(" friday ")
	if err != nil || day != time.Friday {
		t.Errorf("ParseWeekday(friday) = %v, %v", day, err)
	}
	if _, err := ParseWeekday("caturday"); err == nil {
		t.Errorf("expected error for unknown weekday")
	}
}
