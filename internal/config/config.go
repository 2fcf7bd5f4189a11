// Package config загружает конфигурацию сервиса паспортов из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"passport"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"passport"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- HTTP ---
	HTTPAddr         string   `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPMaxBodyBytes int64    `envconfig:"HTTP_MAX_BODY_BYTES" default:"65536"`
	APIKeys          []string `envconfig:"API_KEYS"` // пусто — проверка ключа отключена

	// --- Check-in token ---
	// Секрет передаётся в кодек явно, глобальных переменных нет.
	TokenSecret string        `envconfig:"TOKEN_SECRET" required:"true"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	// --- Credits ---
	CreditsDefault int64 `envconfig:"CREDITS_DEFAULT" default:"100"`
	CreditsPremium int64 `envconfig:"CREDITS_PREMIUM" default:"250"`

	// --- Tiers ---
	// Формат: BRONZE:0,SILVER:500,GOLD:1500,ELITE:5000
	TierTable map[string]int64 `envconfig:"TIER_TABLE" default:"BRONZE:0,SILVER:500,GOLD:1500,ELITE:5000"`

	// --- Rewards ---
	RewardTTL time.Duration `envconfig:"REWARD_TTL" default:"2160h"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Telegram (уведомления) ---
	// user_id в паспорте — это Telegram user ID, поэтому пишем прямо в личку.
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`

	// --- Feature Flags ---
	FeatureNotifyEnabled bool `envconfig:"FEATURE_NOTIFY_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// NotifyEnabled сообщает, нужно ли поднимать Telegram-уведомления.
func (c *Config) NotifyEnabled() bool {
	return c.FeatureNotifyEnabled && c.TelegramBotToken != ""
}

// APIKeySet возвращает допустимые API-ключи в виде множества.
func (c *Config) APIKeySet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.APIKeys))
	for _, k := range c.APIKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func (c *Config) Validate() error {
	if len(c.TokenSecret) < 32 {
		return fmt.Errorf("TOKEN_SECRET должен быть не короче 32 символов")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL должен быть > 0")
	}
	if c.CreditsDefault <= 0 || c.CreditsPremium <= 0 {
		return fmt.Errorf("CREDITS_DEFAULT и CREDITS_PREMIUM должны быть > 0")
	}
	if len(c.TierTable) == 0 {
		return fmt.Errorf("TIER_TABLE пустая")
	}
	hasZero := false
	for name, min := range c.TierTable {
		if min < 0 {
			return fmt.Errorf("TIER_TABLE: отрицательный порог у %s", name)
		}
		if min == 0 {
			hasZero = true
		}
	}
	if !hasZero {
		return fmt.Errorf("TIER_TABLE: нужен уровень с порогом 0")
	}
	if c.RewardTTL <= 0 {
		return fmt.Errorf("REWARD_TTL должен быть > 0")
	}
	if c.HTTPMaxBodyBytes <= 0 {
		return fmt.Errorf("HTTP_MAX_BODY_BYTES должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	// Имена уровней нормализуем: в env их пишут как попало
	normalized := make(map[string]int64, len(cfg.TierTable))
	for name, min := range cfg.TierTable {
		normalized[strings.ToUpper(strings.TrimSpace(name))] = min
	}
	cfg.TierTable = normalized

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
