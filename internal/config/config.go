package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppCfg struct{ Env string }

type APICfg struct {
	BaseURL     string
	Timeout     time.Duration
	RefreshPath string
}

type TokenCfg struct {
	Store    string // file | redis
	File     string
	Secret   []byte
	RedisKey string
}

type RedisCfg struct{ Addr string }

type HTTPCfg struct{ Port, APIKey string }

type TrackerCfg struct {
	DropStale    bool
	PhoneCountry string
	Retention    time.Duration
}

type LogCfg struct{ Level, Format string }

type Cfg struct {
	App     AppCfg
	API     APICfg
	Token   TokenCfg
	Redis   RedisCfg
	HTTP    HTTPCfg
	Tracker TrackerCfg
	Log     LogCfg
}

const (
	TokenStoreFile  = "file"
	TokenStoreRedis = "redis"
)

func Load() (Cfg, error) {
	// 1) Load .env into process env (if file exists); real env wins.
	_ = godotenv.Load()

	// 2) Read from env via viper
	viper.AutomaticEnv()
	viper.SetDefault("APP_ENV", "sandbox")
	viper.SetDefault("API_TIMEOUT_SECONDS", 15)
	viper.SetDefault("AUTH_REFRESH_PATH", "/auth/refresh")
	viper.SetDefault("TOKEN_STORE", TokenStoreFile)
	viper.SetDefault("TOKEN_FILE", defaultTokenFile())
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_KEY", "paytrack:auth:token")
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("TRACKER_DROP_STALE", false)
	viper.SetDefault("PHONE_COUNTRY", "KE")
	viper.SetDefault("SESSION_RETENTION_MINUTES", 30)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")

	cfg := Cfg{
		App: AppCfg{Env: viper.GetString("APP_ENV")},
		API: APICfg{
			BaseURL:     strings.TrimRight(strings.TrimSpace(viper.GetString("API_BASE_URL")), "/"),
			Timeout:     time.Duration(viper.GetInt("API_TIMEOUT_SECONDS")) * time.Second,
			RefreshPath: viper.GetString("AUTH_REFRESH_PATH"),
		},
		Token: TokenCfg{
			Store:    strings.ToLower(strings.TrimSpace(viper.GetString("TOKEN_STORE"))),
			File:     viper.GetString("TOKEN_FILE"),
			Secret:   []byte(viper.GetString("TOKEN_SECRET")),
			RedisKey: viper.GetString("REDIS_KEY"),
		},
		Redis:   RedisCfg{Addr: viper.GetString("REDIS_ADDR")},
		HTTP:    HTTPCfg{Port: viper.GetString("HTTP_PORT"), APIKey: strings.TrimSpace(viper.GetString("HTTP_API_KEY"))},
		Tracker: TrackerCfg{
			DropStale:    viper.GetBool("TRACKER_DROP_STALE"),
			PhoneCountry: strings.ToUpper(strings.TrimSpace(viper.GetString("PHONE_COUNTRY"))),
			Retention:    time.Duration(viper.GetInt("SESSION_RETENTION_MINUTES")) * time.Minute,
		},
		Log: LogCfg{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
	}

	// 3) Fail fast on required settings
	if cfg.API.BaseURL == "" {
		return Cfg{}, errors.New("API_BASE_URL is required")
	}
	if cfg.API.Timeout <= 0 {
		return Cfg{}, fmt.Errorf("API_TIMEOUT_SECONDS must be positive, got %s", viper.GetString("API_TIMEOUT_SECONDS"))
	}
	switch cfg.Token.Store {
	case TokenStoreFile, TokenStoreRedis:
	default:
		return Cfg{}, fmt.Errorf("TOKEN_STORE must be %q or %q, got %q", TokenStoreFile, TokenStoreRedis, cfg.Token.Store)
	}
	if len(cfg.Token.Secret) == 0 {
		return Cfg{}, errors.New("TOKEN_SECRET is required to seal stored credentials")
	}
	return cfg, nil
}

// SetupLogging configures the global zerolog logger.
func SetupLogging(c LogCfg) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || c.Level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	if strings.EqualFold(c.Format, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paytrack-token"
	}
	return filepath.Join(home, ".paytrack", "token")
}
