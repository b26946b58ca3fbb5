package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string
	GinMode   string

	GeminiAPIKey        string
	GeminiModel         string
	GeminiResearchModel string
	OllamaURL           string
	OllamaModel         string
	DefaultEngine       string

	DatabaseURL      string
	AnalysisCacheTTL time.Duration

	TelegramBotToken string
	WebhookURL       string

	SessionIdleTTL time.Duration
	MaxUploadBytes int64
	MaxImagePixels int
	RequestTimeout time.Duration
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := getEnv(k, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: bad duration %q", k, v)
	}
	return d, nil
}

func getInt(k string, def int) (int, error) {
	v := getEnv(k, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: bad number %q", k, v)
	}
	return n, nil
}

// Load reads the environment, after a .env file in the working directory if
// one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		GinMode:   getEnv("GIN_MODE", ""),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiResearchModel: getEnv("GEMINI_RESEARCH_MODEL", "gemini-2.5-flash"),
		OllamaURL:           getEnv("OLLAMA_URL", ""),
		OllamaModel:         getEnv("OLLAMA_MODEL", "llava"),
		DefaultEngine:       strings.ToLower(getEnv("DEFAULT_ENGINE", "gemini")),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       strings.TrimRight(getEnv("WEBHOOK_URL", ""), "/"),
	}

	var errs []error
	var err error
	if cfg.AnalysisCacheTTL, err = getDuration("ANALYSIS_CACHE_TTL", 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.SessionIdleTTL, err = getDuration("SESSION_IDLE_TTL", 2*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 180*time.Second); err != nil {
		errs = append(errs, err)
	}
	mb, err := getInt("MAX_UPLOAD_MB", 32)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MaxUploadBytes = int64(mb) << 20
	if cfg.MaxImagePixels, err = getInt("MAX_IMAGE_PIXELS", 50_000_000); err != nil {
		errs = append(errs, err)
	}

	switch cfg.DefaultEngine {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			errs = append(errs, errors.New("DEFAULT_ENGINE=gemini requires GEMINI_API_KEY"))
		}
	case "ollama":
		if cfg.OllamaURL == "" {
			errs = append(errs, errors.New("DEFAULT_ENGINE=ollama requires OLLAMA_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("DEFAULT_ENGINE: unknown engine %q", cfg.DefaultEngine))
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT: use json or text, got %q", cfg.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}
