package application

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMConfig selects the model endpoint used for planning and answering.
type LLMConfig struct {
	Provider      string `yaml:"provider"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`
}

// Config defines chat service configuration.
type Config struct {
	LLM            LLMConfig `yaml:"llm"`
	Timezone       string    `yaml:"timezone"`
	HeartbeatEvery int       `yaml:"heartbeat_seconds"`
	PreviewRows    int       `yaml:"preview_rows"`
	AllowedOrigins []string  `yaml:"allowed_origins"`
	AllowAnonymous bool      `yaml:"allow_anonymous"`
	JWTSecret      string    `yaml:"jwt_secret"`
	RequestTimeout int       `yaml:"request_timeout_seconds"`
}

// HeartbeatInterval returns the SSE heartbeat period.
func (c Config) HeartbeatInterval() time.Duration {
	if c.HeartbeatEvery <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.HeartbeatEvery) * time.Second
}

// Timeout returns the per-request deadline.
func (c Config) Timeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// LoadConfig loads config from env, optionally overlaid by a yaml file
// named in CHAT_CONFIG.
func LoadConfig() (Config, error) {
	cfg := Config{
		LLM: LLMConfig{
			Provider:      getenvDefault("LLM_PROVIDER", "openai"),
			BaseURL:       os.Getenv("LLM_BASE_URL"),
			APIKey:        os.Getenv("OPENAI_API_KEY"),
			Model:         getenvDefault("LLM_MODEL", "gpt-4o-mini"),
			FallbackModel: getenvDefault("LLM_FALLBACK_MODEL", "gpt-4o"),
		},
		Timezone:       getenvDefault("CHAT_TIMEZONE", "Asia/Jerusalem"),
		HeartbeatEvery: getenvIntDefault("CHAT_HEARTBEAT_SECONDS", 15),
		PreviewRows:    getenvIntDefault("CHAT_PREVIEW_ROWS", 20),
		AllowedOrigins: splitCSV(getenvDefault("CHAT_ALLOWED_ORIGINS", "")),
		AllowAnonymous: getenvBool("CHAT_ALLOW_ANONYMOUS"),
		JWTSecret:      os.Getenv("CHAT_JWT_SECRET"),
		RequestTimeout: getenvIntDefault("CHAT_REQUEST_TIMEOUT_SECONDS", 60),
	}

	if path := os.Getenv("CHAT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.LLM.Model == "" {
		return cfg, errors.New("chat config: model required")
	}
	if cfg.JWTSecret == "" && !cfg.AllowAnonymous {
		return cfg, errors.New("chat config: jwt secret required unless anonymous access is enabled")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string) bool {
	value := strings.ToLower(os.Getenv(key))
	return value == "1" || value == "true" || value == "yes"
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
