package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver      string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPath        string
	RedisHost     string
	RedisPort     string
	SessionSecret string
	GinMode       string
	Port          string

	FirebaseProjectID       string
	FirebaseCredentialsFile string
	PubSubProjectID         string
	PubSubTopic             string
	PrefsBackend            string

	CalendarRecentWindow time.Duration
	CalendarPauseWindow  time.Duration
	CalendarHydrateDelay time.Duration
	PrefsWriteDelay      time.Duration
	TrashRetention       time.Duration
	ShutdownTimeout      time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		DBDriver:      getEnv("DB_DRIVER", "postgres"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "tasker"),
		DBPassword:    getEnv("DB_PASSWORD", "taskerpassword"),
		DBName:        getEnv("DB_NAME", "tasker"),
		DBPath:        getEnv("DB_PATH", "tasker.db"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		SessionSecret: getEnv("SESSION_SECRET", "default-secret-key-change-me"),
		GinMode:       getEnv("GIN_MODE", "debug"),
		Port:          getEnv("PORT", "8080"),

		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		PubSubProjectID:         getEnv("PUBSUB_PROJECT_ID", ""),
		PubSubTopic:             getEnv("PUBSUB_TOPIC", "tasker-changes"),
		PrefsBackend:            getEnv("PREFS_BACKEND", "db"),

		CalendarRecentWindow: getDuration("CALENDAR_RECENT_WINDOW", 6*time.Second),
		CalendarPauseWindow:  getDuration("CALENDAR_PAUSE_WINDOW", 900*time.Millisecond),
		CalendarHydrateDelay: getDuration("CALENDAR_HYDRATE_DELAY", 140*time.Millisecond),
		PrefsWriteDelay:      getDuration("PREFS_WRITE_DELAY", 400*time.Millisecond),
		TrashRetention:       getDuration("TRASH_RETENTION", 720*time.Hour),
		ShutdownTimeout:      getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// RedisAddr joins the Redis host and port.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			return parsed
		}
	}
	return defaultValue
}
