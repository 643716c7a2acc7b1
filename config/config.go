package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with
// simple defaults; secrets have no hardcoded fallback.
type Config struct {
	Port        string
	PublicDir   string // Root directory for the web UI assets
	QueueStore  string // Path of the queue snapshot file
	TokenStore  string // Path of the Spotify token snapshot file
	StorageDir  string // Base directory for both snapshot files

	// Spotify 应用凭据
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string

	// Role passphrases. Empty disables the corresponding login.
	AdminPassword string
	DJPassword    string
	SessionSecret string

	AutoRefresh bool // Refresh the Spotify token in the background

	// MySQL（播放历史账本，可选）
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis（会话镜像，可选）
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	LogLevel  string
	LogOutput string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool treats "1"/"true" (case-insensitive after Atoi of "1") as true.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		return value == "1" || value == "true" || value == "TRUE"
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	storageBase := getEnv("STORAGE_DIR", "storage")

	return &Config{
		Port:       getEnv("PORT", "5173"),
		PublicDir:  getEnv("PUBLIC_DIR", filepath.Join("web", "public")),
		StorageDir: storageBase,
		QueueStore: getEnv("QUEUE_STORE", filepath.Join(storageBase, "queue_store.json")),
		TokenStore: getEnv("SESSION_STORE", filepath.Join(storageBase, "session_store.json")),

		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRedirectURI:  os.Getenv("SPOTIFY_REDIRECT_URI"),

		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		DJPassword:    os.Getenv("DJ_PASSWORD"),
		SessionSecret: getEnv("SESSION_SECRET", "default-secret-change-in-production"),

		AutoRefresh: getEnvBool("AUTO_REFRESH", true),

		DBHost:     os.Getenv("DB_HOST"), // 未设置时禁用播放历史
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "partyq"),

		RedisHost:     os.Getenv("REDIS_HOST"), // 未设置时会话仅保存在内存
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogOutput: getEnv("LOG_OUTPUT", ""),
	}
}
