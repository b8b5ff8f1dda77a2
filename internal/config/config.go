package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode   `env:"MODE" envDefault:"offline"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	PublicURL string `env:"PUBLIC_URL"`
	LogMode   string `env:"LOG_MODE" envDefault:"dev"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN"`

	BlobBasePath string `env:"BLOB_BASE_PATH" envDefault:"./data"`

	// Redis is optional; an empty address disables the graph cache.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	GraphCacheTTL time.Duration `env:"GRAPH_CACHE_TTL" envDefault:"10m"`

	EnableLocalAuth bool          `env:"ENABLE_LOCAL_AUTH" envDefault:"true"`
	AuthHMACSecret  string        `env:"AUTH_HMAC_SECRET" envDefault:"supersecret-dev-key"`
	AuthTokenTTL    time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"8h"`

	AdminUser     string `env:"ADMIN_USER" envDefault:"admin"`
	AdminPassHash string `env:"ADMIN_PASS_HASH" envDefault:"$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"`
	// SeedDevUsers creates author/learner accounts (password = username) in offline mode.
	SeedDevUsers bool `env:"SEED_DEV_USERS" envDefault:"true"`

	CORSOriginsOnline  []string `env:"CORS_ORIGINS_ONLINE" envDefault:"https://scenarios.mindengage.ai" envSeparator:","`
	CORSOriginsOffline []string `env:"CORS_ORIGINS_OFFLINE" envDefault:"http://localhost:3000,http://localhost:3010" envSeparator:","`

	Otel OtelConfig `envPrefix:"OTEL_"`
}

type OtelConfig struct {
	Enabled     bool              `env:"ENABLED" envDefault:"false"`
	ServiceName string            `env:"SERVICE_NAME" envDefault:"mindengage-scenarios"`
	Endpoint    string            `env:"EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool              `env:"EXPORTER_OTLP_INSECURE"`
	Headers     map[string]string `env:"EXPORTER_OTLP_HEADERS"`
	SampleRatio float64           `env:"SAMPLER_RATIO" envDefault:"0.1"`
}

// FromEnv loads an optional .env file (existing variables win) and parses
// the environment into Config.
func FromEnv(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	switch cfg.Mode {
	case ModeOffline, ModeOnline:
	default:
		return Config{}, fmt.Errorf("config: MODE must be %q or %q, got %q", ModeOffline, ModeOnline, cfg.Mode)
	}
	return cfg, nil
}

// CORSOrigins returns the allowed origins for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}
