// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
//
// Tek bir Config iki binary tarafından paylaşılır:
//   - reference backend (main.go): Server, Database, JWT, RateLimit
//   - terminal client (cmd/chat): Client
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Client    ClientConfig
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host           string   `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port           int      `env:"SERVER_PORT" envDefault:"9090"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8081,http://localhost:19006"`
}

// DatabaseConfig, SQLite database ayarları.
type DatabaseConfig struct {
	Path     string `env:"DATABASE_PATH" envDefault:"./data/eventchat.db"`
	SeedDemo bool   `env:"DATABASE_SEED_DEMO" envDefault:"false"`
}

// JWTConfig, access token ayarları.
type JWTConfig struct {
	Secret            string        `env:"JWT_SECRET"` // GİZLİ TUTULMALI, backend için zorunlu
	AccessTokenExpiry time.Duration `env:"JWT_ACCESS_EXPIRY" envDefault:"24h"`
}

// RateLimitConfig, mesaj ve login spam koruması.
type RateLimitConfig struct {
	MessageMax      int           `env:"RATE_MESSAGE_MAX" envDefault:"5"`
	MessageWindow   time.Duration `env:"RATE_MESSAGE_WINDOW" envDefault:"5s"`
	MessageCooldown time.Duration `env:"RATE_MESSAGE_COOLDOWN" envDefault:"15s"`
	LoginMax        int           `env:"RATE_LOGIN_MAX" envDefault:"10"`
	LoginWindow     time.Duration `env:"RATE_LOGIN_WINDOW" envDefault:"1m"`
	LoginCooldown   time.Duration `env:"RATE_LOGIN_COOLDOWN" envDefault:"5m"`
}

// ClientConfig, client core ayarları.
//
// LiveURLs sırayla denenir: ilk URL uyumluluk (compat) endpoint'i, sonraki
// doğrudan endpoint. Böylece kısıtlayıcı mobil ağlarda önce en toleranslı
// yol denenir.
type ClientConfig struct {
	APIBaseURL string   `env:"CHAT_API_URL" envDefault:"http://localhost:9090/api"`
	LiveURLs   []string `env:"CHAT_LIVE_URLS" envSeparator:"," envDefault:"ws://localhost:9090/ws"`
	Token      string   `env:"CHAT_TOKEN"`

	RequestTimeout  time.Duration `env:"CHAT_REQUEST_TIMEOUT" envDefault:"15s"`
	RefreshInterval time.Duration `env:"CHAT_REFRESH_INTERVAL" envDefault:"5s"`
	TypingIdle      time.Duration `env:"CHAT_TYPING_IDLE" envDefault:"2s"`
	TypingTimeout   time.Duration `env:"CHAT_TYPING_TIMEOUT" envDefault:"3s"`
	IdentityTTL     time.Duration `env:"CHAT_IDENTITY_TTL" envDefault:"10m"`

	ReconnectInitial  time.Duration `env:"CHAT_RECONNECT_INITIAL" envDefault:"1s"`
	ReconnectMax      time.Duration `env:"CHAT_RECONNECT_MAX" envDefault:"5s"`
	ReconnectAttempts int           `env:"CHAT_RECONNECT_ATTEMPTS" envDefault:"5"`
	HeartbeatInterval time.Duration `env:"CHAT_HEARTBEAT_INTERVAL" envDefault:"30s"`

	Debug bool `env:"CHAT_DEBUG" envDefault:"false"`
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler; dosya yoksa sessizce devam eder.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Client.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateServer, backend'in çalışması için zorunlu alanları kontrol eder.
// Client binary'si JWT secret olmadan da çalışabilmelidir, bu yüzden
// Load içinde değil main.go'da çağrılır.
func (c *Config) ValidateServer() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.Server.Port)
	}
	if c.RateLimit.MessageMax <= 0 || c.RateLimit.LoginMax <= 0 {
		return fmt.Errorf("rate limit maximums must be positive")
	}
	return nil
}

func (c *ClientConfig) validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("CHAT_API_URL must not be empty")
	}
	if len(c.LiveURLs) == 0 {
		return fmt.Errorf("CHAT_LIVE_URLS must contain at least one URL")
	}
	if c.ReconnectAttempts < 1 {
		return fmt.Errorf("invalid CHAT_RECONNECT_ATTEMPTS: %d (must be at least 1)", c.ReconnectAttempts)
	}
	if c.ReconnectInitial <= 0 || c.ReconnectMax < c.ReconnectInitial {
		return fmt.Errorf("invalid reconnect delays: initial=%s max=%s", c.ReconnectInitial, c.ReconnectMax)
	}
	if c.RefreshInterval <= 0 || c.TypingIdle <= 0 || c.TypingTimeout <= 0 {
		return fmt.Errorf("refresh and typing intervals must be positive")
	}
	return nil
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:9090").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
