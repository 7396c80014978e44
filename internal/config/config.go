package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server       ServerConfig
	LLM          LLMConfig
	Storage      StorageConfig
	Orchestrator OrchestratorConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	orch, err := loadOrchestratorConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:       server,
		LLM:          llm,
		Storage:      StorageConfig{Path: getEnvOrDefault("DATA_PATH", "data/roundtable.db")},
		Orchestrator: orch,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LLMConfig carries the startup defaults for the completion endpoint. The
// persisted settings, once saved, take precedence over these values.
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

func loadLLMConfig() (LLMConfig, error) {
	timeoutSeconds := 60
	if override, err := parseOptionalIntEnv("LLM_TIMEOUT_SECONDS"); err != nil {
		return LLMConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return LLMConfig{}, fmt.Errorf("LLM_TIMEOUT_SECONDS must be positive, got %d", *override)
		}
		timeoutSeconds = *override
	}

	return LLMConfig{
		BaseURL:        getEnvOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
		APIKey:         strings.TrimSpace(os.Getenv("LLM_API_KEY")),
		Model:          strings.TrimSpace(os.Getenv("LLM_MODEL")),
		RequestTimeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// StorageConfig 描述持久化存储配置。
type StorageConfig struct {
	Path string
}

// OrchestratorConfig tunes auto-chat pacing.
type OrchestratorConfig struct {
	MinTurnDelay      time.Duration
	MaxTurnDelay      time.Duration
	RequestsPerMinute int
}

func loadOrchestratorConfig() (OrchestratorConfig, error) {
	minDelayMs := 1500
	if override, err := parseOptionalIntEnv("AUTO_CHAT_MIN_DELAY_MS"); err != nil {
		return OrchestratorConfig{}, err
	} else if override != nil {
		minDelayMs = *override
	}

	maxDelayMs := 4000
	if override, err := parseOptionalIntEnv("AUTO_CHAT_MAX_DELAY_MS"); err != nil {
		return OrchestratorConfig{}, err
	} else if override != nil {
		maxDelayMs = *override
	}

	if minDelayMs < 0 || maxDelayMs < minDelayMs {
		return OrchestratorConfig{}, fmt.Errorf("invalid auto-chat delay window: min=%dms max=%dms", minDelayMs, maxDelayMs)
	}

	rpm := 20
	if override, err := parseOptionalIntEnv("AUTO_CHAT_REQUESTS_PER_MINUTE"); err != nil {
		return OrchestratorConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return OrchestratorConfig{}, fmt.Errorf("AUTO_CHAT_REQUESTS_PER_MINUTE must be positive, got %d", *override)
		}
		rpm = *override
	}

	return OrchestratorConfig{
		MinTurnDelay:      time.Duration(minDelayMs) * time.Millisecond,
		MaxTurnDelay:      time.Duration(maxDelayMs) * time.Millisecond,
		RequestsPerMinute: rpm,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
