package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/alfawz/hifz/internal/database"
	"github.com/alfawz/hifz/internal/spaced_repetition"
)

// Config is the process configuration, read from the environment and an optional .env file
type Config struct {
	LogMode  string
	LogLevel string

	DBType      string
	SQLitePath  string
	DatabaseURL string

	TelegramToken string
	TeacherIDs    map[int64]bool

	NotificationStartHour int
	NotificationEndHour   int

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	MinEase      float64
	InitialEase  float64
	MaxInterval  int
	OverdueGrace time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("LOG_MODE", "dev")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("DB_TYPE", "sqlite")
	v.SetDefault("SQLITE_PATH", "data/hifz.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TEACHER_USER_IDS", "")
	v.SetDefault("NOTIFICATION_START_HOUR", 4)
	v.SetDefault("NOTIFICATION_END_HOUR", 18)
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("SRS_MIN_EASE", 1.3)
	v.SetDefault("SRS_INITIAL_EASE", 2.5)
	v.SetDefault("SRS_MAX_INTERVAL", 0)
	v.SetDefault("SRS_OVERDUE_GRACE_HOURS", 24)
}

// Load reads .env (if it exists) and the environment
func Load(dotEnvPath string) (*Config, error) {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return nil, errors.Wrapf(err, "config.godotenv(%s)", dotEnvPath)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "config.os.Stat(%s)", dotEnvPath)
		}
	}

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		LogMode:               v.GetString("LOG_MODE"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		DBType:                strings.ToLower(v.GetString("DB_TYPE")),
		SQLitePath:            v.GetString("SQLITE_PATH"),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		TelegramToken:         v.GetString("TELEGRAM_BOT_TOKEN"),
		NotificationStartHour: v.GetInt("NOTIFICATION_START_HOUR"),
		NotificationEndHour:   v.GetInt("NOTIFICATION_END_HOUR"),
		OpenAIKey:             v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:         v.GetString("OPENAI_BASE_URL"),
		OpenAIModel:           v.GetString("OPENAI_MODEL"),
		MinEase:               v.GetFloat64("SRS_MIN_EASE"),
		InitialEase:           v.GetFloat64("SRS_INITIAL_EASE"),
		MaxInterval:           v.GetInt("SRS_MAX_INTERVAL"),
		OverdueGrace:          time.Duration(v.GetFloat64("SRS_OVERDUE_GRACE_HOURS") * float64(time.Hour)),
	}

	ids, err := parseIDs(v.GetString("TEACHER_USER_IDS"))
	if err != nil {
		return nil, err
	}
	cfg.TeacherIDs = ids

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseIDs(raw string) (map[int64]bool, error) {
	ids := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid teacher user ID %q", part)
		}
		ids[id] = true
	}
	return ids, nil
}

func (c *Config) validate() error {
	switch c.DBType {
	case "sqlite", "sqlite3":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH must be set for sqlite")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set for postgres")
		}
	default:
		return errors.Errorf("unsupported DB_TYPE %q", c.DBType)
	}
	if c.NotificationStartHour < 0 || c.NotificationStartHour > 23 ||
		c.NotificationEndHour < 0 || c.NotificationEndHour > 23 {
		return errors.New("notification hours must be within 0-23")
	}
	if c.MinEase <= 0 || c.InitialEase < c.MinEase {
		return errors.Errorf("invalid ease bounds: min %.2f, initial %.2f", c.MinEase, c.InitialEase)
	}
	if c.MaxInterval < 0 {
		return errors.Errorf("invalid SRS_MAX_INTERVAL %d", c.MaxInterval)
	}
	return nil
}

// Database returns the store connection settings
func (c *Config) Database() database.Config {
	if c.DBType == "postgres" {
		return database.Config{Driver: database.DriverPostgres, DSN: c.DatabaseURL}
	}
	return database.Config{Driver: database.DriverSQLite, DSN: c.SQLitePath}
}

// SM2 returns the scheduler constants with the configured overrides applied
func (c *Config) SM2() spaced_repetition.Config {
	sm := spaced_repetition.DefaultConfig()
	sm.MinEase = c.MinEase
	sm.InitialEase = c.InitialEase
	sm.MaxInterval = c.MaxInterval
	if c.OverdueGrace > 0 {
		sm.OverdueGrace = c.OverdueGrace
	}
	return sm
}

// IsTeacher reports whether a Telegram user may run teacher commands
func (c *Config) IsTeacher(id int64) bool {
	return c.TeacherIDs[id]
}
