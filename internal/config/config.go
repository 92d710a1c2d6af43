package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects the client variant.
type Mode string

const (
	// ModeWeb: any visible card can be decided, identity kept in memory.
	ModeWeb Mode = "web"
	// ModeMobile: only the head card can be decided, identity kept in sqlite.
	ModeMobile Mode = "mobile"
)

type Config struct {
	APIURL                string
	WSURL                 string
	Mode                  Mode
	SessionDBPath         string
	LogFile               string // empty: stderr
	LogLevel              string
	HTTPTimeout           time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	FakeServerAddr        string
	JWTSecret             string
}

// Load reads a .env file if present, then the environment.
func Load() *Config {
	// .env is optional
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() *Config {
	mode := Mode(strings.ToLower(strings.TrimSpace(getEnv("CLIENT_MODE", string(ModeMobile)))))
	if mode != ModeWeb {
		mode = ModeMobile
	}

	return &Config{
		APIURL:                strings.TrimRight(getEnv("API_URL", "http://localhost:3333"), "/"),
		WSURL:                 getEnv("WS_URL", "ws://localhost:3333/ws"),
		Mode:                  mode,
		SessionDBPath:         getEnv("SESSION_DB_PATH", "data/session.db"),
		LogFile:               getEnv("LOG_FILE", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		HTTPTimeout:           getDuration("HTTP_TIMEOUT", 10*time.Second),
		ReconnectInitialDelay: getDuration("RECONNECT_INITIAL_DELAY", time.Second),
		ReconnectMaxDelay:     getDuration("RECONNECT_MAX_DELAY", 30*time.Second),
		FakeServerAddr:        getEnv("FAKESERVER_ADDR", ":3333"),
		JWTSecret:             getEnv("JWT_SECRET", "dev-secret-change-me"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
