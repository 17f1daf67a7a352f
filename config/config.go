package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/vereinsportal/portal/internal/secret"
)

type Config struct {
	DatabasePath string
	Timezone     *time.Location
	ServerPort   string
	SecretKey    string
	LogLevel     slog.Level

	CacheTTL      time.Duration
	LookBack      time.Duration
	LookAhead     time.Duration
	FetchWorkers  int
	CalDAVTimeout time.Duration
	SessionIdle   time.Duration

	DigestSchedule string
	DigestDays     int

	TelegramToken  string
	TelegramChatID int64
	WebhookURL     string
}

// fileConfig mirrors the optional YAML file named by CONFIG_FILE.
// Environment variables win over file values.
type fileConfig struct {
	DatabasePath string `yaml:"database_path"`
	Timezone     string `yaml:"timezone"`
	ServerPort   string `yaml:"server_port"`
	SecretKey    string `yaml:"secret_key"`
	LogLevel     string `yaml:"log_level"`

	Calendar struct {
		CacheTTL     string `yaml:"cache_ttl"`
		LookBack     string `yaml:"look_back"`
		LookAhead    string `yaml:"look_ahead"`
		FetchWorkers int    `yaml:"fetch_workers"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"calendar"`

	SessionIdle string `yaml:"session_idle"`

	Digest struct {
		Schedule string `yaml:"schedule"`
		Days     int    `yaml:"days"`
	} `yaml:"digest"`

	Telegram struct {
		Token      string `yaml:"token"`
		ChatID     int64  `yaml:"chat_id"`
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"telegram"`
}

func loadFile(path string) (*fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return &fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &fc, nil
}

// value returns the env var, else the file value, else def
func value(env, file, def string) string {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	if file != "" {
		return file
	}
	return def
}

func duration(env, file, def string) (time.Duration, error) {
	raw := value(env, file, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", env, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", env)
	}
	return d, nil
}

func positiveInt(env string, file int, def int) (int, error) {
	fileValue := ""
	if file != 0 {
		fileValue = strconv.Itoa(file)
	}
	n, err := strconv.Atoi(value(env, fileValue, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive number", env)
	}
	return n, nil
}

func Load() (*Config, error) {
	fc, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabasePath:   value("DATABASE_PATH", fc.DatabasePath, "./data/portal.db"),
		ServerPort:     value("SERVER_PORT", fc.ServerPort, "8080"),
		SecretKey:      value("SECRET_KEY", fc.SecretKey, ""),
		DigestSchedule: value("DIGEST_SCHEDULE", fc.Digest.Schedule, "0 7 * * *"),
		TelegramToken:  value("TELEGRAM_BOT_TOKEN", fc.Telegram.Token, ""),
		WebhookURL:     value("WEBHOOK_URL", fc.Telegram.WebhookURL, ""),
	}

	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY is required")
	}
	if _, err := secret.ParseKey(cfg.SecretKey); err != nil {
		return nil, fmt.Errorf("invalid SECRET_KEY: %w", err)
	}

	tz, err := time.LoadLocation(value("TIMEZONE", fc.Timezone, "Europe/Berlin"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Timezone = tz

	if err := cfg.LogLevel.UnmarshalText([]byte(value("LOG_LEVEL", fc.LogLevel, "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if cfg.CacheTTL, err = duration("CACHE_TTL", fc.Calendar.CacheTTL, "300s"); err != nil {
		return nil, err
	}
	if cfg.LookBack, err = duration("WINDOW_PAST", fc.Calendar.LookBack, "24h"); err != nil {
		return nil, err
	}
	if cfg.LookAhead, err = duration("WINDOW_AHEAD", fc.Calendar.LookAhead, "1440h"); err != nil {
		return nil, err
	}
	if cfg.CalDAVTimeout, err = duration("CALDAV_TIMEOUT", fc.Calendar.Timeout, "30s"); err != nil {
		return nil, err
	}
	if cfg.SessionIdle, err = duration("SESSION_IDLE", fc.SessionIdle, "720h"); err != nil {
		return nil, err
	}
	if cfg.FetchWorkers, err = positiveInt("FETCH_WORKERS", fc.Calendar.FetchWorkers, 4); err != nil {
		return nil, err
	}
	if cfg.DigestDays, err = positiveInt("DIGEST_DAYS", fc.Digest.Days, 7); err != nil {
		return nil, err
	}

	if _, err := cron.ParseStandard(cfg.DigestSchedule); err != nil {
		return nil, fmt.Errorf("invalid DIGEST_SCHEDULE: %w", err)
	}

	var chatFile string
	if fc.Telegram.ChatID != 0 {
		chatFile = strconv.FormatInt(fc.Telegram.ChatID, 10)
	}
	if raw := value("TELEGRAM_CHAT_ID", chatFile, ""); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID must be a number")
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// TelegramEnabled returns true if digest and chat commands can run
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// IsAllowedChat reports whether a chat may use the bot commands
func (c *Config) IsAllowedChat(chatID int64) bool {
	return c.TelegramChatID != 0 && chatID == c.TelegramChatID
}
