package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the binaries read from the environment.
// The client binary needs the API and socket endpoints plus the session
// file location; the dev backend needs its listen address.
type Config struct {
	APIBaseURL     string
	SocketURL      string
	SessionFile    string
	RequestTimeout time.Duration
	HTTPAddr       string
	ServiceName    string
}

func Load() *Config {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	return &Config{
		APIBaseURL:     getEnv("ASTSECRET_API_URL", "http://localhost:5000/api"),
		SocketURL:      getEnv("ASTSECRET_SOCKET_URL", "ws://localhost:5000/socket"),
		SessionFile:    getEnv("ASTSECRET_SESSION_FILE", defaultSessionFile()),
		RequestTimeout: getEnvDuration("ASTSECRET_REQUEST_TIMEOUT", 10*time.Second),
		HTTPAddr:       getEnv("ASTSECRET_HTTP_ADDR", ":5000"),
		ServiceName:    getEnv("SERVICE_NAME", "astsecret"),
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".astsecret-session.json"
	}
	return dir + "/astsecret/session.json"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
