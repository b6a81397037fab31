package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string
	AdminIDs      []int64

	// OpenAI configuration
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Gamma rendering configuration
	GammaAPIKey  string
	GammaBaseURL string

	// Storage configuration
	DatabasePath string
	UseMockDB    bool

	// Worker configuration
	WorkerPollInterval time.Duration
	RenderPollInterval time.Duration
	RenderTimeout      time.Duration
	DownloadDir        string

	// Health endpoint
	Port int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	// Telegram Bot Token (required)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	// Admin IDs (required)
	adminIDsStr := os.Getenv("ADMIN_IDS")
	if adminIDsStr == "" {
		return nil, fmt.Errorf("ADMIN_IDS is required (comma-separated list of Telegram user IDs)")
	}

	idStrs := strings.Split(adminIDsStr, ",")
	for _, idStr := range idStrs {
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID in ADMIN_IDS: %s", idStr)
		}
		config.AdminIDs = append(config.AdminIDs, id)
	}

	// Use Mock DB (default: false)
	config.UseMockDB = os.Getenv("USE_MOCK_DB") == "true"

	// External API keys (required unless running against the mock DB,
	// which is the local development mode)
	config.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if config.OpenAIAPIKey == "" && !config.UseMockDB {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	config.OpenAIModel = os.Getenv("OPENAI_MODEL")
	if config.OpenAIModel == "" {
		config.OpenAIModel = "gpt-4o"
	}

	config.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	if config.OpenAIBaseURL == "" {
		config.OpenAIBaseURL = "https://api.openai.com/v1"
	}

	config.GammaAPIKey = os.Getenv("GAMMA_API_KEY")
	if config.GammaAPIKey == "" && !config.UseMockDB {
		return nil, fmt.Errorf("GAMMA_API_KEY is required")
	}

	config.GammaBaseURL = os.Getenv("GAMMA_BASE_URL")
	if config.GammaBaseURL == "" {
		config.GammaBaseURL = "https://public-api.gamma.app/v0.2"
	}

	config.DatabasePath = os.Getenv("DATABASE_PATH")
	if config.DatabasePath == "" {
		config.DatabasePath = "data/pitchbot.db"
	}

	var err error
	config.WorkerPollInterval, err = durationFromEnv("WORKER_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	config.RenderPollInterval, err = durationFromEnv("RENDER_POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}

	config.RenderTimeout, err = durationFromEnv("RENDER_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	config.DownloadDir = os.Getenv("DOWNLOAD_DIR")
	if config.DownloadDir == "" {
		config.DownloadDir = os.TempDir()
	}

	portStr := os.Getenv("PORT")
	if portStr == "" {
		config.Port = 8080
	} else {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = port
	}

	return config, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
