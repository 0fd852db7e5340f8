package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultJWTSecret = "perfsentry-secret-key-change-in-production"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	LDAP     LDAPConfig     `yaml:"ldap"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Reminder ReminderConfig `yaml:"reminder"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
	// AllowedOrigins restricts CORS; empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

type LDAPConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	BaseDN       string `yaml:"base_dn"`
	BindDN       string `yaml:"bind_dn"`
	BindPassword string `yaml:"bind_password"`
	UserFilter   string `yaml:"user_filter"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// RedisConfig for optional async notification delivery
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level         string `yaml:"level"`          // debug, info, warn, error
	RetentionDays int    `yaml:"retention_days"` // audit log retention, 0 keeps everything
}

// ReminderConfig controls the 360° feedback reminder job.
type ReminderConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Cron       string `yaml:"cron"`
	DaysBefore int    `yaml:"days_before"`
	Country    string `yaml:"country"` // workday calendar, e.g. US, GB, CN, NONE
}

// Load reads configPath (default config.yaml), falling back to defaults when the
// file is missing. Variables from a .env file next to the process are loaded
// before environment overrides are applied.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	// A missing .env is not an error.
	_ = godotenv.Load()

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: "8080", Mode: "debug"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "perfsentry.db"},
		JWT:      JWTConfig{Secret: defaultJWTSecret, ExpireHour: 24},
		LDAP:     LDAPConfig{Port: 389, UserFilter: "(uid=%s)"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Log:      LogConfig{Level: "info", RetentionDays: 90},
		Reminder: ReminderConfig{
			Enabled:    true,
			Cron:       "0 9 * * *",
			DaysBefore: 3,
			Country:    "NONE",
		},
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.JWT.ExpireHour <= 0 {
		return fmt.Errorf("jwt.expire_hour must be positive, got %d", c.JWT.ExpireHour)
	}
	if c.Server.Mode == "release" && (c.JWT.Secret == "" || c.JWT.Secret == defaultJWTSecret) {
		return errors.New("jwt.secret must be set in release mode")
	}
	if c.Reminder.Enabled && c.Reminder.DaysBefore <= 0 {
		return fmt.Errorf("reminder.days_before must be positive, got %d", c.Reminder.DaysBefore)
	}
	if c.LDAP.Enabled && (c.LDAP.Host == "" || c.LDAP.BaseDN == "") {
		return errors.New("ldap.host and ldap.base_dn are required when ldap is enabled")
	}
	return nil
}

func (c *Config) overrideFromEnv() error {
	setString(&c.Server.Host, "SERVER_HOST")
	setString(&c.Server.Port, "SERVER_PORT")
	setString(&c.Server.Mode, "SERVER_MODE")
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DB_DSN")
	setString(&c.JWT.Secret, "JWT_SECRET")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Reminder.Cron, "REMINDER_CRON")
	if country := os.Getenv("REMINDER_COUNTRY"); country != "" {
		c.Reminder.Country = strings.ToUpper(country)
	}

	for _, v := range []struct {
		key string
		dst *int
	}{
		{"JWT_EXPIRE_HOUR", &c.JWT.ExpireHour},
		{"LOG_RETENTION_DAYS", &c.Log.RetentionDays},
		{"REMINDER_DAYS_BEFORE", &c.Reminder.DaysBefore},
	} {
		if err := setInt(v.dst, v.key); err != nil {
			return err
		}
	}

	if raw := os.Getenv("REDIS_URL"); raw != "" {
		if err := c.Redis.applyURL(raw); err != nil {
			return err
		}
		c.Redis.Enabled = true
	}
	return nil
}

// applyURL reads redis://[user:password@]host:port[/db].
func (r *RedisConfig) applyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid REDIS_URL %q", raw)
	}
	r.Addr = u.Host
	if pw, ok := u.User.Password(); ok {
		r.Password = pw
	}
	if db := strings.Trim(u.Path, "/"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("invalid redis db %q", db)
		}
		r.DB = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	*dst = n
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
