package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                 string `env:"PORT"`
	LogLevel             string `env:"LOG_LEVEL"`
	MongoURI             string `env:"MONGODB_URI,secret"`
	DBName               string `env:"DB_NAME"`
	RedisURL             string `env:"REDIS_URL,secret"`
	JWTSecret            string `env:"JWT_SECRET,secret"`
	CORSOrigin           string `env:"CORS_ORIGIN"`
	RoomIdleTimeoutSecs  int    `env:"ROOM_IDLE_TIMEOUT_SECONDS"`
	DigestUTCOffsetHours int    `env:"DIGEST_UTC_OFFSET_HOURS"`
	InitialSetupToken    string `env:"INITIAL_SETUP_TOKEN,secret"`
	InitialAdminEmail    string `env:"INITIAL_ADMIN_EMAIL"`
	InitialAdminPassword string `env:"INITIAL_ADMIN_PASSWORD,secret"`
	InitialAdminNickname string `env:"INITIAL_ADMIN_NICKNAME"`
}

// Load loads configuration from a .env file (if present) and environment variables
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "3001"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		MongoURI:             getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:               getEnv("DB_NAME", "tracker-db"),
		RedisURL:             getEnv("REDIS_URL", ""),
		JWTSecret:            getEnv("JWT_SECRET", "default_secret_keep_it_safe"),
		CORSOrigin:           getEnv("CORS_ORIGIN", "http://localhost:5173"),
		RoomIdleTimeoutSecs:  getEnvInt("ROOM_IDLE_TIMEOUT_SECONDS", 3600),
		DigestUTCOffsetHours: getEnvInt("DIGEST_UTC_OFFSET_HOURS", 7),
		InitialSetupToken:    getEnv("INITIAL_SETUP_TOKEN", ""),
		InitialAdminEmail:    getEnv("INITIAL_ADMIN_EMAIL", ""),
		InitialAdminPassword: getEnv("INITIAL_ADMIN_PASSWORD", ""),
		InitialAdminNickname: getEnv("INITIAL_ADMIN_NICKNAME", "Admin"),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
