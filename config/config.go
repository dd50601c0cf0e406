package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Role string

const (
	RoleUser     Role = "user"
	RoleAdmin    Role = "admin"
	RoleLoadKeys Role = "load-keys"
)

// XUIConfig points at the 3x-ui panel. An empty Host disables panel stats.
type XUIConfig struct {
	Host        string
	Port        string
	Prefix      string
	Token       string
	Username    string
	Password    string
	InsecureTLS bool
}

type AppConfig struct {
	Role Role

	BotToken      string
	AdminBotToken string
	AdminID       int64
	DatabaseURL   string
	RedisURL      string

	XUI XUIConfig

	HTTPAddr     string
	ReceiptsDir  string
	BackupDir    string
	LockDir      string
	ReminderCron string
	BackupCron   string
	SupportURL   string
	PriceRUB     int

	LogLevel string
	LogFile  string
}

// Load reads .env (if present) and the process environment for role.
func Load(role Role) (*AppConfig, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()
	return fromEnv(role, os.Getenv)
}

func fromEnv(role Role, getenv func(string) string) (*AppConfig, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	defaultAddr := ":8080"
	if role == RoleAdmin {
		defaultAddr = ":8081"
	}

	cfg := &AppConfig{
		Role:          role,
		BotToken:      get("TELEGRAM_TOKEN", ""),
		AdminBotToken: get("ADMIN_BOT_TOKEN", ""),
		DatabaseURL:   get("DATABASE_URL", ""),
		RedisURL:      get("REDIS_URL", ""),
		XUI: XUIConfig{
			Host:     get("XUI_HOST", ""),
			Port:     get("XUI_PORT", ""),
			Prefix:   get("XUI_PREFIX", ""),
			Token:    get("XUI_TOKEN", ""),
			Username: get("XUI_USERNAME", ""),
			Password: get("XUI_PASSWORD", ""),
		},
		HTTPAddr:     get("HTTP_ADDR", defaultAddr),
		ReceiptsDir:  get("RECEIPTS_DIR", "receipts"),
		BackupDir:    get("BACKUP_DIR", "backups"),
		LockDir:      get("LOCK_DIR", "."),
		ReminderCron: get("REMINDER_CRON", "0 12 * * *"),
		BackupCron:   get("BACKUP_CRON", "0 3 * * *"),
		SupportURL:   get("SUPPORT_URL", "https://t.me/ilyshapretty"),
		LogLevel:     get("LOG_LEVEL", "info"),
		LogFile:      get("LOG_FILE", "logs/"+string(role)+".log"),
	}

	var errs []error
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if role == RoleUser || role == RoleAdmin {
		if cfg.BotToken == "" {
			errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
		}
		if cfg.AdminBotToken == "" {
			errs = append(errs, errors.New("ADMIN_BOT_TOKEN is required"))
		}
		raw := get("ADMIN_ID", "")
		if raw == "" {
			errs = append(errs, errors.New("ADMIN_ID is required"))
		} else if id, err := strconv.ParseInt(raw, 10, 64); err != nil || id == 0 {
			errs = append(errs, fmt.Errorf("ADMIN_ID %q is not a Telegram user id", raw))
		} else {
			cfg.AdminID = id
		}
	}

	price, err := strconv.Atoi(get("PRICE_RUB", "200"))
	if err != nil || price <= 0 {
		errs = append(errs, fmt.Errorf("PRICE_RUB %q must be a positive integer", getenv("PRICE_RUB")))
	}
	cfg.PriceRUB = price

	insecure := get("XUI_INSECURE_TLS", "false")
	cfg.XUI.InsecureTLS, err = strconv.ParseBool(insecure)
	if err != nil {
		errs = append(errs, fmt.Errorf("XUI_INSECURE_TLS %q is not a boolean", insecure))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}
