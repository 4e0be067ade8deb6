package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// ErrMissingJWTSecret is returned by Validate when the server cannot sign workspace tokens.
var ErrMissingJWTSecret = errors.New("JWT_SECRET environment variable is not set")

type Config struct {
	Host      string
	Port      string
	JwtSecret string
	LogLevel  string

	// GeminiAPIKey may be empty. The gateway then reports itself unconfigured
	// and every AI call fails soft instead of crashing the process.
	GeminiAPIKey     string
	GeminiTextModel  string
	GeminiImageModel string

	StoreDriver string // memory | sqlite | postgres
	DatabaseURL string

	CorsOrigins []string

	MinIO MinIOConfig
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether exports can be pushed to object storage.
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != "" && m.Bucket != ""
}

// AIConfigured reports whether the Gemini credential was provided.
func (c *Config) AIConfigured() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}

// LoadConfig reads .env (if present) and the process environment.
// Missing values fall back to local development defaults.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}
	cfg := &Config{
		Host:             os.Getenv("HOST"),
		Port:             os.Getenv("PORT"),
		JwtSecret:        os.Getenv("JWT_SECRET"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiTextModel:  os.Getenv("GEMINI_TEXT_MODEL"),
		GeminiImageModel: os.Getenv("GEMINI_IMAGE_MODEL"),
		StoreDriver:      strings.ToLower(os.Getenv("STORE_DRIVER")),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		CorsOrigins:      splitList(os.Getenv("CORS_ORIGINS")),
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    os.Getenv("MINIO_BUCKET"),
			UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		},
	}
	cfg.applyDefaults()

	if !cfg.AIConfigured() {
		log.Warn("GEMINI_API_KEY is not set. Story analysis and rendering will fail until it is configured.")
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.GeminiTextModel == "" {
		c.GeminiTextModel = "gemini-2.5-flash"
	}
	if c.GeminiImageModel == "" {
		c.GeminiImageModel = "gemini-2.5-flash-image"
	}
	if c.StoreDriver == "" {
		c.StoreDriver = "sqlite"
	}
	if c.DatabaseURL == "" && c.StoreDriver == "sqlite" {
		c.DatabaseURL = "storycanvas.db"
	}
	if len(c.CorsOrigins) == 0 {
		c.CorsOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
}

// Validate checks the settings the HTTP server cannot run without.
func (c *Config) Validate() error {
	if c.JwtSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
