// Package config loads and validates bot settings from the environment.
//
// Settings come from process env vars, optionally seeded from a .env file.
// Validation is backend-aware: each backend mode has its own set of required
// keys. Degenerate values (for example a non-positive response limit) are
// rejected here, before any component that would consume them runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Backend modes supported by the agent router.
const (
	BackendOllama        = "ollama"
	BackendBedrockNova   = "bedrock-nova"
	BackendBedrockClaude = "bedrock-claude"
	BackendOpenAI        = "openai"
)

// Discord enforces a hard ceiling of 2000 characters per message; the
// default chunk limit stays under it to leave headroom for formatting.
const (
	DefaultMaxResponseChars = 1800
	PlatformMessageCeiling  = 2000
)

// Settings holds the full runtime configuration of the bot.
type Settings struct {
	// Discord
	DiscordToken     string
	DiscordChannelID string

	// Backend routing
	BackendMode string

	// Ollama
	OllamaModel   string
	OllamaBaseURL string

	// AWS / Bedrock
	AWSRegion          string
	NovaModelID        string
	NovaTemperature    float64
	NovaMaxTokens      int
	NovaTopP           float64
	BedrockClaudeModel string
	KnowledgeBaseID    string
	KBResultCount      int

	// OpenAI-compatible endpoint
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string

	// Response handling
	MaxResponseChars int

	// Conversation memory
	MemoryMaxMessages int
	MemoryTokenBudget int // 0 disables token-based trimming

	// Prompt management
	SystemPrompt  string
	PromptProfile string
	PromptRoot    string

	// Source agents
	SourcesConfigPath string
	S3Bucket          string
	KBDataSourceID    string

	// Ops
	DatabasePath  string
	HealthAddr    string
	PrometheusURL string
	LogLevel      string
}

var requiredBase = []string{"DISCORD_BOT_TOKEN", "DISCORD_CHANNEL_ID", "BACKEND_MODE"} //nolint:gochecknoglobals

// Load reads settings from the environment, seeding it from .env when the
// file exists, then validates the result.
func Load() (*Settings, error) {
	s := FromEnv()

	var missing []string
	for _, key := range requiredBase {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// FromEnv reads settings from the environment without validating them.
// botctl uses it so operational commands work from a partial
// configuration; the bot itself goes through Load.
func FromEnv() *Settings {
	// Missing .env is fine; explicit env vars win either way.
	_ = godotenv.Load()

	s := &Settings{
		DiscordToken:       os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordChannelID:   os.Getenv("DISCORD_CHANNEL_ID"),
		BackendMode:        strings.ToLower(os.Getenv("BACKEND_MODE")),
		OllamaModel:        os.Getenv("OLLAMA_MODEL"),
		OllamaBaseURL:      getenvDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
		AWSRegion:          os.Getenv("AWS_REGION"),
		NovaModelID:        getenvDefault("NOVA_MODEL_ID", "us.amazon.nova-pro-v1:0"),
		NovaTemperature:    getenvFloat("NOVA_TEMPERATURE", 0.7),
		NovaMaxTokens:      getenvInt("NOVA_MAX_TOKENS", 4096),
		NovaTopP:           getenvFloat("NOVA_TOP_P", 0.9),
		BedrockClaudeModel: getenvDefault("BEDROCK_CLAUDE_MODEL", "anthropic.claude-3-sonnet-20240229-v1:0"),
		KnowledgeBaseID:    os.Getenv("KNOWLEDGE_BASE_ID"),
		KBResultCount:      getenvInt("KB_RESULT_COUNT", 5),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        os.Getenv("OPENAI_MODEL"),
		MaxResponseChars:   getenvInt("MAX_RESPONSE_CHARS", DefaultMaxResponseChars),
		MemoryMaxMessages:  getenvInt("MEMORY_MAX_MESSAGES", 50),
		MemoryTokenBudget:  getenvInt("MEMORY_TOKEN_BUDGET", 0),
		SystemPrompt:       os.Getenv("SYSTEM_PROMPT"),
		PromptProfile:      getenvDefault("PROMPT_PROFILE", "default"),
		PromptRoot:         resolvePromptRoot(os.Getenv("PROMPT_ROOT")),
		SourcesConfigPath:  os.Getenv("SOURCE_AGENTS_CONFIG"),
		S3Bucket:           os.Getenv("KB_S3_BUCKET"),
		KBDataSourceID:     os.Getenv("KB_DATA_SOURCE_ID"),
		DatabasePath:       getenvDefault("DATABASE_PATH", "communitybot.db"),
		HealthAddr:         os.Getenv("HEALTH_ADDR"),
		PrometheusURL:      getenvDefault("PROMETHEUS_URL", "http://localhost:9090"),
		LogLevel:           getenvDefault("LOG_LEVEL", "INFO"),
	}
	return s
}

// Validate checks cross-field constraints. It is split from Load so tests
// and botctl can validate hand-built settings.
func (s *Settings) Validate() error {
	switch s.BackendMode {
	case BackendOllama:
		if s.OllamaModel == "" {
			return fmt.Errorf("OLLAMA_MODEL is required for the %s backend", BackendOllama)
		}
	case BackendBedrockNova, BackendBedrockClaude:
		if s.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required for the %s backend", s.BackendMode)
		}
	case BackendOpenAI:
		if s.OpenAIModel == "" {
			return fmt.Errorf("OPENAI_MODEL is required for the %s backend", BackendOpenAI)
		}
	default:
		return fmt.Errorf("BACKEND_MODE must be one of %s, %s, %s, %s (got %q)",
			BackendOllama, BackendBedrockNova, BackendBedrockClaude, BackendOpenAI, s.BackendMode)
	}

	if _, err := strconv.ParseInt(s.DiscordChannelID, 10, 64); err != nil {
		return fmt.Errorf("DISCORD_CHANNEL_ID must be a numeric snowflake: %w", err)
	}

	if s.MaxResponseChars <= 0 {
		return fmt.Errorf("MAX_RESPONSE_CHARS must be positive (got %d)", s.MaxResponseChars)
	}
	if s.MaxResponseChars > PlatformMessageCeiling {
		return fmt.Errorf("MAX_RESPONSE_CHARS must not exceed the platform ceiling of %d (got %d)",
			PlatformMessageCeiling, s.MaxResponseChars)
	}

	if s.MemoryMaxMessages <= 0 {
		return fmt.Errorf("MEMORY_MAX_MESSAGES must be positive (got %d)", s.MemoryMaxMessages)
	}

	return nil
}

// KnowledgeBaseEnabled reports whether chat prompts should be augmented
// with knowledge base retrieval.
func (s *Settings) KnowledgeBaseEnabled() bool {
	return s.KnowledgeBaseID != ""
}

func resolvePromptRoot(root string) string {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "agents"
		}
		return filepath.Join(cwd, "agents")
	}
	if filepath.IsAbs(root) {
		return filepath.Clean(root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return root
	}
	return abs
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
