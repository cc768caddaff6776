package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Dues     DuesConfig     `mapstructure:"dues"`
	History  HistoryConfig  `mapstructure:"history"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AdminToken   string        `mapstructure:"admin_token"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// GatewayConfig points at the WhatsApp gateway. InstanceID/APIToken are only a
// fallback; credentials saved under the "whatsapp" setting take precedence.
type GatewayConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	InstanceID string        `mapstructure:"instance_id"`
	APIToken   string        `mapstructure:"api_token"`
}

type DispatchConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	StaggerDelay time.Duration `mapstructure:"stagger_delay"`
	BatchDelay   time.Duration `mapstructure:"batch_delay"`
	SentBy       string        `mapstructure:"sent_by"`
}

type DuesConfig struct {
	MonthlyAmount string `mapstructure:"monthly_amount"`
}

// Amount parses MonthlyAmount, returning zero when it is unset or malformed.
func (d DuesConfig) Amount() decimal.Decimal {
	amt, err := decimal.NewFromString(d.MonthlyAmount)
	if err != nil {
		return decimal.Zero
	}
	return amt
}

type HistoryConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

type EventsConfig struct {
	WebhookURL    string        `mapstructure:"webhook_url"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("aptnotify")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/aptnotify")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("APTNOTIFY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.admin_token", "")

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/aptnotify.db")

	viper.SetDefault("gateway.base_url", "https://api.green-api.com")
	viper.SetDefault("gateway.timeout", 30*time.Second)
	// empty defaults make the keys visible to env lookups
	viper.SetDefault("gateway.instance_id", "")
	viper.SetDefault("gateway.api_token", "")

	viper.SetDefault("dispatch.batch_size", 3)
	viper.SetDefault("dispatch.stagger_delay", 200*time.Millisecond)
	viper.SetDefault("dispatch.batch_delay", 500*time.Millisecond)
	viper.SetDefault("dispatch.sent_by", "admin")

	viper.SetDefault("dues.monthly_amount", "500")

	viper.SetDefault("history.cache_size", 100)

	viper.SetDefault("events.webhook_url", "")
	viper.SetDefault("events.webhook_secret", "")
	viper.SetDefault("events.timeout", 5*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
