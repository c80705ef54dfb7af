package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Session    SessionConfig    `yaml:"session"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Payment    PaymentConfig    `yaml:"payment"`
	Admin      AdminConfig      `yaml:"admin"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type ServerConfig struct {
	Port          int    `yaml:"port"`
	CookieDomain  string `yaml:"cookie_domain"`
	SessionCookie string `yaml:"session_cookie"`
	DeviceCookie  string `yaml:"device_cookie"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type ScheduleConfig struct {
	Timezone     string   `yaml:"timezone"`
	Open         string   `yaml:"open"`
	Close        string   `yaml:"close"`
	SlotMinutes  int      `yaml:"slot_minutes"`
	HorizonDays  int      `yaml:"horizon_days"`
	RestDays     []string `yaml:"rest_days"`
	ClosuresPath string   `yaml:"closures_path"`
}

type PricingConfig struct {
	SlotPrice int64 `yaml:"slot_price"`
}

type PaymentConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Pin          string        `yaml:"pin"`
	CreateURL    string        `yaml:"create_url"`
	VerifyURL    string        `yaml:"verify_url"`
	RedirectBase string        `yaml:"redirect_base"`
	CallbackURL  string        `yaml:"callback_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

type AdminConfig struct {
	Enabled      bool                 `yaml:"enabled"`
	HeaderAPIKey string               `yaml:"header_api_key"`
	HeaderExtra  string               `yaml:"header_extra"`
	Keys         []AdminKey           `yaml:"keys"`
	RateLimit    AdminRateLimitConfig `yaml:"rate_limit"`
}

type AdminKey struct {
	Key   string `yaml:"key"`
	Extra string `yaml:"extra"`
	Name  string `yaml:"name"`
}

type AdminRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type GoogleConfig struct {
	Enabled               bool   `yaml:"enabled"`
	CredentialsFile       string `yaml:"credentials_file"`
	AppointmentsSheetID   string `yaml:"appointments_spreadsheet_id"`
	AppointmentsSheetName string `yaml:"appointments_sheet_name"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment wins either way.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Expand ${VAR} references before parsing so secrets stay out of YAML.
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, _, err := ParseClock(c.Schedule.Open); err != nil {
		return fmt.Errorf("schedule.open: %w", err)
	}
	if _, _, err := ParseClock(c.Schedule.Close); err != nil {
		return fmt.Errorf("schedule.close: %w", err)
	}
	if c.Schedule.SlotMinutes <= 0 {
		return errors.New("schedule.slot_minutes must be positive")
	}
	if c.Schedule.HorizonDays <= 0 {
		return errors.New("schedule.horizon_days must be positive")
	}
	for _, day := range c.Schedule.RestDays {
		if _, err := ParseWeekday(day); err != nil {
			return fmt.Errorf("schedule.rest_days: %w", err)
		}
	}

	if c.Payment.Enabled {
		if c.Payment.Pin == "" {
			return errors.New("payment.pin is required when payment is enabled")
		}
		if c.Payment.CreateURL == "" || c.Payment.VerifyURL == "" || c.Payment.RedirectBase == "" {
			return errors.New("payment create_url, verify_url and redirect_base are required when payment is enabled")
		}
		if c.Payment.CallbackURL == "" {
			return errors.New("payment.callback_url is required when payment is enabled")
		}
		if c.Pricing.SlotPrice <= 0 {
			return errors.New("pricing.slot_price must be positive when payment is enabled")
		}
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required when telegram is enabled")
	}

	if c.Google.Enabled {
		if c.Google.CredentialsFile == "" || c.Google.AppointmentsSheetID == "" {
			return errors.New("google credentials_file and appointments_spreadsheet_id are required when google is enabled")
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.SessionCookie == "" {
		c.Server.SessionCookie = "nobat_session"
	}
	if c.Server.DeviceCookie == "" {
		c.Server.DeviceCookie = "nobat_device_v1"
	}

	if c.Session.TTL == 0 {
		c.Session.TTL = 24 * time.Hour
	}

	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Tehran"
	}
	if c.Schedule.Open == "" {
		c.Schedule.Open = "10:00"
	}
	if c.Schedule.Close == "" {
		c.Schedule.Close = "22:00"
	}
	if c.Schedule.SlotMinutes == 0 {
		c.Schedule.SlotMinutes = 45
	}
	if c.Schedule.HorizonDays == 0 {
		c.Schedule.HorizonDays = 7
	}
	if len(c.Schedule.RestDays) == 0 {
		c.Schedule.RestDays = []string{"Thursday", "Friday"}
	}

	if c.Payment.Timeout == 0 {
		c.Payment.Timeout = 10 * time.Second
	}

	if c.Admin.HeaderAPIKey == "" {
		c.Admin.HeaderAPIKey = "x-api-key"
	}
	if c.Admin.HeaderExtra == "" {
		c.Admin.HeaderExtra = "x-api-extra"
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Google.AppointmentsSheetName == "" {
		c.Google.AppointmentsSheetName = "Appointments"
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock value %q; expected HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// ParseWeekday parses an English weekday name.
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
