package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("TOKEN_SECRET", strings.Repeat("k", 32))
	t.Setenv("TIER_TABLE", "bronze:0, silver:500,GOLD:1500")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TierTable["SILVER"] != 500 || cfg.TierTable["BRONZE"] != 0 {
		t.Errorf("таблица уровней не нормализована: %v", cfg.TierTable)
	}
	if cfg.CreditsDefault != 100 || cfg.CreditsPremium != 250 {
		t.Errorf("неожиданные дефолты кредитов: %d/%d", cfg.CreditsDefault, cfg.CreditsPremium)
	}
	if cfg.TokenTTL.Hours() != 24 {
		t.Errorf("TokenTTL = %v, want 24h", cfg.TokenTTL)
	}
	if cfg.NotifyEnabled() {
		t.Error("без TELEGRAM_BOT_TOKEN уведомления должны быть выключены")
	}
	if got := cfg.DatabaseDSN(); !strings.Contains(got, "passport:secret@postgres:5432/passport") {
		t.Errorf("DSN = %s", got)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			TokenSecret:      strings.Repeat("k", 32),
			TokenTTL:         1,
			CreditsDefault:   100,
			CreditsPremium:   250,
			TierTable:        map[string]int64{"BRONZE": 0},
			RewardTTL:        1,
			HTTPMaxBodyBytes: 1024,
			DBMaxConns:       5,
			DBMinConns:       1,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"short secret", func(c *Config) { c.TokenSecret = "short" }, false},
		{"no zero tier", func(c *Config) { c.TierTable = map[string]int64{"SILVER": 500} }, false},
		{"negative tier", func(c *Config) { c.TierTable["GOLD"] = -1 }, false},
		{"zero credits", func(c *Config) { c.CreditsDefault = 0 }, false},
		{"bad pool", func(c *Config) { c.DBMinConns = 10 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAPIKeySet(t *testing.T) {
	c := Config{APIKeys: []string{" a ", "", "b"}}
	set := c.APIKeySet()
	if len(set) != 2 {
		t.Fatalf("len = %d, want 2", len(set))
	}
	if _, ok := set["a"]; !ok {
		t.Error("ключ a должен быть обрезан и присутствовать")
	}
}
