package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/Board/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`

	Auth    AuthConfig    `mapstructure:"auth"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Storage StorageConfig `mapstructure:"storage"`
}

type AuthConfig struct {
	// Secret signs HS256 tokens. When empty the static Tokens table is used.
	Secret string `mapstructure:"secret"`
	// Tokens is a list rather than a map: viper lowercases map keys, and
	// tokens are case-sensitive.
	Tokens []StaticToken `mapstructure:"tokens"`
	// RevalidatePeriod re-verifies a live connection's token; 0 disables it.
	RevalidatePeriod time.Duration `mapstructure:"revalidate_period"`
}

type StaticToken struct {
	Token string `mapstructure:"token"`
	User  string `mapstructure:"user"`
}

// TokenTable returns the static tokens keyed by token.
func (c AuthConfig) TokenTable() map[string]string {
	table := make(map[string]string, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Token != "" {
			table[t.Token] = t.User
		}
	}
	return table
}

type BrokerConfig struct {
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
	RateLimit      int           `mapstructure:"rate_limit"`
	RateInterval   time.Duration `mapstructure:"rate_interval"`
}

type StorageConfig struct {
	// Driver is one of memory, bolt, postgres, redis.
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). Missing files
// fall back to defaults; BOARD_* environment variables override both.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("BOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", protocol.MaxFrameBytes)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.revalidate_period", "0s")
	v.SetDefault("broker.persist_timeout", "5s")
	v.SetDefault("broker.rate_limit", 20)
	v.SetDefault("broker.rate_interval", "1s")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.path", "board.db")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.addr", "localhost:6379")
	v.SetDefault("storage.password", "")
	v.SetDefault("storage.db", 0)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory", "bolt", "postgres", "redis":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	return nil
}
