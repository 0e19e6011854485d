package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"airdropbot/internal/models"
)

const defaultConfigPath = "config/config.yaml"

type TelegramConfig struct {
	BotToken      string  `yaml:"bot_token" env:"BOT_TOKEN,overwrite"`
	Mode          string  `yaml:"mode" env:"TELEGRAM_MODE,overwrite"`
	WebhookURL    string  `yaml:"webhook_url" env:"TELEGRAM_WEBHOOK_URL,overwrite"`
	WebhookSecret string  `yaml:"webhook_secret" env:"TELEGRAM_WEBHOOK_SECRET,overwrite"`
	SendRate      float64 `yaml:"send_rate" env:"TELEGRAM_SEND_RATE,overwrite"`
	Debug         bool    `yaml:"debug" env:"TELEGRAM_DEBUG,overwrite"`
}

type AirdropConfig struct {
	ProjectName  string               `yaml:"project_name" env:"PROJECT_NAME,overwrite"`
	SocialLink   string               `yaml:"social_link" env:"TWITTER_LINK,overwrite"`
	RewardText   string               `yaml:"reward_text" env:"REWARD_TEXT,overwrite"`
	Requirements []models.Requirement `yaml:"requirements"`
}

type TwitterConfig struct {
	APIKey      string `yaml:"api_key" env:"TWITTER_API_KEY,overwrite"`
	APISecret   string `yaml:"api_secret" env:"TWITTER_API_SECRET,overwrite"`
	BearerToken string `yaml:"bearer_token" env:"TWITTER_BEARER_TOKEN,overwrite"`
	BaseURL     string `yaml:"base_url" env:"TWITTER_BASE_URL,overwrite"`
}

// Configured: соцсеть проверяем только если есть хоть какие-то креды.
func (t TwitterConfig) Configured() bool {
	return t.BearerToken != "" || (t.APIKey != "" && t.APISecret != "")
}

type EngineConfig struct {
	CheckTimeout      time.Duration `yaml:"check_timeout" env:"CHECK_TIMEOUT,overwrite"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT,overwrite"`
	TerminalRetention time.Duration `yaml:"terminal_retention" env:"TERMINAL_RETENTION,overwrite"`
	SweepInterval     time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL,overwrite"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER,overwrite"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR,overwrite"`
	Password string `yaml:"password" env:"REDIS_PASSWORD,overwrite"`
	DB       int    `yaml:"db" env:"REDIS_DB,overwrite"`
}

type EmailConfig struct {
	SMTPHost      string `yaml:"smtp_host" env:"SMTP_HOST,overwrite"`
	SMTPPort      int    `yaml:"smtp_port" env:"SMTP_PORT,overwrite"`
	SMTPUser      string `yaml:"smtp_user" env:"SMTP_USER,overwrite"`
	SMTPPassword  string `yaml:"smtp_password" env:"SMTP_PASSWORD,overwrite"`
	FromEmail     string `yaml:"from_email" env:"SMTP_FROM,overwrite"`
	OperatorEmail string `yaml:"operator_email" env:"OPERATOR_EMAIL,overwrite"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port" env:"PORT,overwrite"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url" env:"DATABASE_URL,overwrite"`
	} `yaml:"database"`
	Admin struct {
		JWTSecret string `yaml:"jwt_secret" env:"ADMIN_JWT_SECRET,overwrite"`
	} `yaml:"admin"`
	Log struct {
		Env string `yaml:"env" env:"APP_ENV,overwrite"`
	} `yaml:"log"`

	Telegram TelegramConfig `yaml:"telegram"`
	Airdrop  AirdropConfig  `yaml:"airdrop"`
	Twitter  TwitterConfig  `yaml:"twitter"`
	Engine   EngineConfig   `yaml:"engine"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Email    EmailConfig    `yaml:"email"`
}

// LoadConfig читает конфиг при старте; при ошибке паникует.
func LoadConfig() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := Load(context.Background(), path)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

// Load decodes the YAML file at path (a missing file is fine), applies .env and
// environment overrides, fills defaults and validates the result.
func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// конфиг-файл необязателен, всё можно задать через ENV
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	_ = godotenv.Load()
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := applyRequirementEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyRequirementEnv supports the classic CHANNEL_ID / GROUP_ID deployment
// variables; they replace requirements with the same id from the file.
func applyRequirementEnv(cfg *Config) error {
	pairs := []struct {
		id, idKey, linkKey, title string
	}{
		{"channel", "CHANNEL_ID", "CHANNEL_LINK", "Telegram Channel"},
		{"group", "GROUP_ID", "GROUP_LINK", "Telegram Group"},
	}
	for _, p := range pairs {
		raw := strings.TrimSpace(os.Getenv(p.idKey))
		if raw == "" {
			continue
		}
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%s must be a valid int64", p.idKey)
		}
		req := models.Requirement{ID: p.id, ChatID: chatID, Title: p.title, Link: os.Getenv(p.linkKey)}
		replaced := false
		for i := range cfg.Airdrop.Requirements {
			if cfg.Airdrop.Requirements[i].ID == p.id {
				if req.Link == "" {
					req.Link = cfg.Airdrop.Requirements[i].Link
				}
				cfg.Airdrop.Requirements[i] = req
				replaced = true
			}
		}
		if !replaced {
			cfg.Airdrop.Requirements = append(cfg.Airdrop.Requirements, req)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Env == "" {
		c.Log.Env = "production"
	}
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = "polling"
	}
	if c.Telegram.SendRate <= 0 {
		c.Telegram.SendRate = 25
	}
	if c.Twitter.BaseURL == "" {
		c.Twitter.BaseURL = "https://api.twitter.com"
	}
	if c.Engine.CheckTimeout <= 0 {
		c.Engine.CheckTimeout = 5 * time.Second
	}
	if c.Engine.IdleTimeout <= 0 {
		c.Engine.IdleTimeout = 24 * time.Hour
	}
	if c.Engine.TerminalRetention <= 0 {
		c.Engine.TerminalRetention = time.Hour
	}
	if c.Engine.SweepInterval <= 0 {
		c.Engine.SweepInterval = 10 * time.Minute
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	for i := range c.Airdrop.Requirements {
		r := &c.Airdrop.Requirements[i]
		if r.ID == "" {
			r.ID = strconv.FormatInt(r.ChatID, 10)
		}
		if r.Title == "" {
			r.Title = r.ID
		}
	}
}

// Validate reports configuration the bot cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return errors.New("BOT_TOKEN is required")
	}
	if len(c.Airdrop.Requirements) == 0 {
		return errors.New("at least one membership requirement is required")
	}
	seen := make(map[string]bool, len(c.Airdrop.Requirements))
	for _, r := range c.Airdrop.Requirements {
		if r.ChatID == 0 {
			return fmt.Errorf("requirement %q: chat_id is required", r.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("requirement %q declared twice", r.ID)
		}
		seen[r.ID] = true
	}
	switch c.Telegram.Mode {
	case "polling":
	case "webhook":
		if c.Telegram.WebhookURL == "" {
			return errors.New("telegram.webhook_url is required in webhook mode")
		}
	default:
		return fmt.Errorf("unknown telegram mode %q", c.Telegram.Mode)
	}
	switch c.Store.Driver {
	case "memory", "redis":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}
