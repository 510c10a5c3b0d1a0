package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"pulse-mcp/internal/jira"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Jira     jira.Config
	DataPath string
	LogDir   string
	CacheDir string

	// CacheURL selects the snapshot store backend (memory://, file://, sqlite://, postgres://, firestore://).
	CacheURL string
	// UsersFile is an optional YAML file with user profiles and refresh cadences.
	UsersFile string

	MaxConcurrency      int
	StitchPreferRecent  bool
	FetchOnMiss         bool
	EnableMermaidCharts bool
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Binary directory first: MCP clients launch us from anywhere
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Working directory (go run, tests)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	return fromEnv(exeDir), nil
}

func fromEnv(exeDir string) *AppConfig {
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	logDir := getEnv("LOGS_FOLDER", filepath.Join(dataPath, "logs"))
	cacheDir := filepath.Join(dataPath, "cache")

	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", logDir).Msg("Failed to create log directory")
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", cacheDir).Msg("Failed to create cache directory")
	}

	delaySecs, _ := strconv.ParseFloat(getEnv("JIRA_REQUEST_DELAY_SECONDS", "0"), 64)

	return &AppConfig{
		Jira: jira.Config{
			BaseURL:          getEnv("JIRA_URL", ""),
			Email:            getEnv("JIRA_EMAIL", ""),
			Token:            getEnv("JIRA_TOKEN", ""),
			StoryPointsField: getEnv("JIRA_STORY_POINTS_FIELD", jira.DefaultStoryPointsField),
			RequestDelay:     time.Duration(delaySecs * float64(time.Second)),
		},
		DataPath:            dataPath,
		LogDir:              logDir,
		CacheDir:            cacheDir,
		CacheURL:            getEnv("CACHE_URL", "file://"+filepath.ToSlash(cacheDir)),
		UsersFile:           getEnv("USERS_FILE", ""),
		MaxConcurrency:      getEnvInt("MAX_CONCURRENCY", 4),
		StitchPreferRecent:  getEnvBool("STITCH_PREFER_RECENT", false),
		FetchOnMiss:         getEnvBool("FETCH_ON_MISS", true),
		EnableMermaidCharts: getEnvBool("ENABLE_MERMAID_CHARTS", false),
	}
}

// HasSource reports whether enough Jira settings are present to build a client.
func (c *AppConfig) HasSource() bool {
	return c.Jira.BaseURL != "" && c.Jira.Token != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return intVal
		}
	}
	return fallback
}
