package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// IdentityStore はユーザーレコードの保存先を表す。
type IdentityStore string

const (
	// IdentityStoreMongo はMongoDBのusersコレクションに保存する。
	IdentityStoreMongo IdentityStore = "mongo"
	// IdentityStorePostgres はPostgreSQLのusersテーブルに保存する。
	IdentityStorePostgres IdentityStore = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL   string        `env:"DATABASE_URL"`
	IdentityStore IdentityStore `env:"IDENTITY_STORE" envDefault:"mongo"`
	MongoURI      string        `env:"MONGO_URI"`
	MongoDatabase string        `env:"MONGO_DATABASE" envDefault:"belanjaku"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`

	// Session
	SessionSecret  string   `env:"SESSION_SECRET"`
	SessionMaxAge  int      `env:"SESSION_MAX_AGE" envDefault:"2592000"`
	SessionIssuer  string   `env:"SESSION_ISSUER" envDefault:"belanjaku"`
	ProtectedPaths []string `env:"PROTECTED_PATHS" envDefault:"/profile" envSeparator:","`

	// Mail
	SMTPHost        string        `env:"SMTP_HOST"`
	SMTPPort        int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername    string        `env:"SMTP_USERNAME"`
	SMTPPassword    string        `env:"SMTP_PASSWORD"`
	SMTPFrom        string        `env:"SMTP_FROM" envDefault:"no-reply@belanjaku.local"`
	VerificationTTL time.Duration `env:"VERIFICATION_TTL" envDefault:"24h"`

	// Cleanup
	TokenCleanupInterval time.Duration `env:"TOKEN_CLEANUP_INTERVAL" envDefault:"24h"`

	// Rate Limit
	RateLimitAuth int `env:"RATE_LIMIT_AUTH" envDefault:"10"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	// Required fields
	var missing []string
	required := []struct {
		key   string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"GOOGLE_CLIENT_ID", cfg.GoogleClientID},
		{"GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret},
		{"GOOGLE_REDIRECT_URL", cfg.GoogleRedirectURL},
		{"SESSION_SECRET", cfg.SessionSecret},
		{"BASE_URL", cfg.BaseURL},
	}
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.key)
		}
	}

	switch cfg.IdentityStore {
	case IdentityStoreMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, "MONGO_URI")
		}
	case IdentityStorePostgres:
	default:
		return nil, fmt.Errorf("unsupported IDENTITY_STORE: %q (allowed: mongo, postgres)", cfg.IdentityStore)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// MailEnabled はSMTP送信が設定されているかを返す。
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}
