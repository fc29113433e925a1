package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/joho/godotenv"
)

// Config holds application configuration for all run modes.
type Config struct {
	// Chat backend endpoint, consumed by the bot relay and the console.
	BackendURL  string
	ChatUser    string
	HTTPTimeout time.Duration

	// WhatsApp session lifecycle.
	SessionDB            string
	MaxQRAttempts        int
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MediaLimitBytes      int64

	// HTTP surfaces.
	StatusPort  string
	BackendPort string
	CORSOrigins string

	// Generative model (serve mode).
	GeminiAPIKey string
	GeminiModel  string

	DataDir string
	LogDir  string
}

// Load reads configuration from the environment, with an optional .env file.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		BackendURL:  getEnv("BACKEND_URL", "http://localhost:8000/api/chat"),
		ChatUser:    getEnv("CHAT_USER", "console"),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		SessionDB:            getEnv("SESSION_DB", "data/don-confiado.db"),
		MaxQRAttempts:        getEnvInt("MAX_QR_ATTEMPTS", 3),
		ReconnectMaxAttempts: getEnvInt("RECONNECT_MAX_ATTEMPTS", 10),
		ReconnectBaseDelay:   getEnvDuration("RECONNECT_BASE_DELAY", time.Second),
		ReconnectMaxDelay:    getEnvDuration("RECONNECT_MAX_DELAY", 30*time.Second),
		MediaLimitBytes:      int64(getEnvInt("MEDIA_LIMIT_BYTES", 10*1024*1024)),

		StatusPort:  getEnv("STATUS_PORT", "8081"),
		BackendPort: getEnv("BACKEND_PORT", "8000"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		DataDir: getEnv("DATA_DIR", "data"),
		LogDir:  getEnv("LOG_DIR", "logs"),
	}
}

// EnsureDataDir ensures the data directory exists.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// GetCorsConfig returns CORS configuration for the HTTP servers.
func (c *Config) GetCorsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	if c.CORSOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(c.CORSOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "Content-Type"}
	corsConfig.MaxAge = 12 * time.Hour
	return corsConfig
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
