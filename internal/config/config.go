// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// minSecretLength はHS256署名鍵の最小バイト数（256bit）。
	minSecretLength = 32
	// minTokenTTLMs はトークン有効期間の下限（ミリ秒）。
	minTokenTTLMs = 1

	minBcryptCost = 4
	maxBcryptCost = 31
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Token
	JWTSecretKey    string `env:"JWT_SECRET_KEY,required,notEmpty"`
	JWTExpirationMs int64  `env:"JWT_EXPIRATION_MS" envDefault:"86400000"`

	// OAuth
	GoogleClientID      string `env:"GOOGLE_CLIENT_ID,required,notEmpty"`
	GoogleClientSecret  string `env:"GOOGLE_CLIENT_SECRET,required,notEmpty"`
	GoogleRedirectURL   string `env:"GOOGLE_REDIRECT_URL,required,notEmpty"`
	FrontendRedirectURL string `env:"FRONTEND_REDIRECT_URL" envDefault:"http://localhost:5173/oauth2/redirect"`

	// Password
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	// Gemini
	GeminiAPIKey          string        `env:"GEMINI_API_KEY,required,notEmpty"`
	GeminiEndpoint        string        `env:"GEMINI_ENDPOINT" envDefault:"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"`
	GeminiTimeout         time.Duration `env:"GEMINI_TIMEOUT" envDefault:"30s"`
	GeminiRequestInterval time.Duration `env:"GEMINI_REQUEST_INTERVAL" envDefault:"1s"`

	// Server
	ServerPort     string        `env:"SERVER_PORT" envDefault:"8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:5173"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は型変換だけでは検出できない値の制約を検証する。
func (c *Config) validate() error {
	var errs []error

	if len(c.JWTSecretKey) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET_KEY must be at least %d bytes", minSecretLength))
	}
	if c.JWTExpirationMs < minTokenTTLMs {
		errs = append(errs, fmt.Errorf("JWT_EXPIRATION_MS must be at least %d", minTokenTTLMs))
	}
	if c.BcryptCost < minBcryptCost || c.BcryptCost > maxBcryptCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", minBcryptCost, maxBcryptCost))
	}
	if u, err := url.Parse(c.FrontendRedirectURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("FRONTEND_REDIRECT_URL must be an absolute URL"))
	}
	if c.GeminiRequestInterval < 0 {
		errs = append(errs, fmt.Errorf("GEMINI_REQUEST_INTERVAL must not be negative"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// TokenTTL はミリ秒指定のトークン有効期間をtime.Durationで返す。
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTExpirationMs) * time.Millisecond
}

// LogValue はslog出力用の表現を返す。
// 署名鍵・クライアントシークレット・APIキーは含めない。
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("server_port", c.ServerPort),
		slog.Int64("jwt_expiration_ms", c.JWTExpirationMs),
		slog.String("frontend_redirect_url", c.FrontendRedirectURL),
		slog.String("google_redirect_url", c.GoogleRedirectURL),
		slog.String("gemini_endpoint", c.GeminiEndpoint),
		slog.Duration("request_timeout", c.RequestTimeout),
		slog.String("cors_allowed_origin", c.CORSAllowedOrigin),
		slog.String("log_level", c.LogLevel),
	)
}
