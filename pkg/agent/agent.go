// Package agent routes chat requests to the configured LLM backend and
// manages per-thread conversation state. It is the seam between Discord
// delivery and the model clients: backend selection, retry and metrics
// middleware, knowledge base augmentation, and thread naming all live here.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"communitybot/pkg/agent/internal/llmimpl/bedrockclaude"
	"communitybot/pkg/agent/internal/llmimpl/bedrocknova"
	"communitybot/pkg/agent/internal/llmimpl/ollama"
	"communitybot/pkg/agent/internal/llmimpl/openaicompat"
	"communitybot/pkg/agent/llm"
	"communitybot/pkg/agent/middleware/metrics"
	"communitybot/pkg/agent/middleware/retry"
	"communitybot/pkg/config"
	"communitybot/pkg/kb"
	"communitybot/pkg/logx"
	"communitybot/pkg/memory"
	"communitybot/pkg/prompt"
)

// DefaultSystemPrompt is used when no profile or override provides one.
const DefaultSystemPrompt = "You are a helpful Discord community assistant."

// threadNameLimit is Discord's maximum thread name length.
const threadNameLimit = 100

// Retriever supplies knowledge base passages for prompt augmentation.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]kb.Result, error)
}

// Agent answers community questions through the configured backend.
type Agent struct {
	client    llm.LLMClient
	store     *memory.Store
	retriever Retriever // nil when no knowledge base is configured
	maxTokens int
	temp      float32
	logger    *logx.Logger
}

// New builds an agent from settings: backend client, middleware chain,
// prompt bundle, conversation store, and optional knowledge base retriever.
func New(ctx context.Context, cfg *config.Settings, recorder metrics.Recorder) (*Agent, error) {
	logger := logx.NewLogger("agent")

	systemPrompt := resolveSystemPrompt(cfg, logger)

	base, awsRequired, err := buildClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if recorder == nil {
		recorder = metrics.Nop()
	}
	client := llm.Chain(base,
		metrics.Middleware(recorder, cfg.BackendMode, logger),
		retry.Middleware(retry.NewPolicy(retry.DefaultConfig, nil)),
	)

	a := &Agent{
		client:    client,
		store:     memory.NewStore(systemPrompt, cfg.MemoryMaxMessages, cfg.MemoryTokenBudget),
		maxTokens: cfg.NovaMaxTokens,
		temp:      float32(cfg.NovaTemperature),
		logger:    logger,
	}

	if cfg.KnowledgeBaseEnabled() {
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.retriever = kb.NewRetriever(bedrockagentruntime.NewFromConfig(awsCfg), cfg.KnowledgeBaseID, cfg.KBResultCount)
		logger.Info("knowledge base augmentation enabled (kb=%s)", cfg.KnowledgeBaseID)
	} else if awsRequired {
		logger.Debug("no knowledge base configured")
	}

	logger.Info("agent initialized: backend=%s model=%s", cfg.BackendMode, client.GetModelName())
	return a, nil
}

// resolveSystemPrompt loads the profile bundle, applying the env override,
// and falls back to the default persona when the profile is missing.
func resolveSystemPrompt(cfg *config.Settings, logger *logx.Logger) string {
	loader := prompt.NewLoader(cfg.PromptRoot, cfg.SystemPrompt)
	system, err := loader.SystemPrompt(cfg.PromptProfile)
	if err != nil {
		if cfg.SystemPrompt != "" {
			return cfg.SystemPrompt
		}
		logger.Warn("prompt profile %q unavailable, using default persona: %v", cfg.PromptProfile, err)
		return DefaultSystemPrompt
	}
	if strings.TrimSpace(system) == "" {
		return DefaultSystemPrompt
	}
	return system
}

// buildClient constructs the raw backend client for the configured mode.
// The second return reports whether the backend itself needed AWS config.
func buildClient(ctx context.Context, cfg *config.Settings) (llm.LLMClient, bool, error) {
	switch cfg.BackendMode {
	case config.BackendOllama:
		return ollama.NewClient(cfg.OllamaBaseURL, cfg.OllamaModel), false, nil
	case config.BackendBedrockNova:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, true, err
		}
		return bedrocknova.NewClient(bedrockruntime.NewFromConfig(awsCfg), cfg.NovaModelID), true, nil
	case config.BackendBedrockClaude:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, true, err
		}
		return bedrockclaude.NewClient(awsCfg, cfg.BedrockClaudeModel), true, nil
	case config.BackendOpenAI:
		return openaicompat.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel), false, nil
	default:
		return nil, false, fmt.Errorf("unknown backend mode: %q", cfg.BackendMode)
	}
}

func loadAWSConfig(ctx context.Context, cfg *config.Settings) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// Respond answers a user message within a thread's conversation. Knowledge
// base retrieval is best-effort: when it fails the bot answers without it.
func (a *Agent) Respond(ctx context.Context, threadID, userMessage string) (string, error) {
	conv := a.store.Get(threadID)
	conv.AddUser(userMessage)

	messages := conv.Messages()
	if a.retriever != nil {
		results, err := a.retriever.Retrieve(ctx, userMessage)
		if err != nil {
			a.logger.Warn("knowledge base lookup failed, answering without it: %v", err)
		} else if len(results) > 0 {
			// Only the outgoing request carries the augmentation; memory
			// keeps the raw message.
			messages[len(messages)-1].Content = kb.Augment(userMessage, results)
		}
	}

	req := a.newRequest(messages)
	resp, err := a.client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("backend completion failed: %w", err)
	}

	conv.AddAssistant(resp.Content)
	return resp.Content, nil
}

// RespondStream streams the answer for a user message, returning the
// assembled text. Partial output is discarded on error.
func (a *Agent) RespondStream(ctx context.Context, threadID, userMessage string) (string, error) {
	conv := a.store.Get(threadID)
	conv.AddUser(userMessage)

	stream, err := a.client.Stream(ctx, a.newRequest(conv.Messages()))
	if err != nil {
		return "", fmt.Errorf("backend stream failed: %w", err)
	}
	answer, err := llm.Collect(ctx, stream, 0)
	if err != nil {
		return "", fmt.Errorf("backend stream failed: %w", err)
	}

	conv.AddAssistant(answer)
	return answer, nil
}

// GenerateThreadName asks the backend for a short thread title based on the
// opening message. It never fails: any problem falls back to a name derived
// from the username.
func (a *Agent) GenerateThreadName(ctx context.Context, message, username string) string {
	fallback := "Chat with " + username

	req := a.newRequest([]llm.CompletionMessage{
		llm.NewUserMessage(fmt.Sprintf(
			"Generate a short, descriptive title (maximum 100 characters) for a conversation that starts with this message. Reply with only the title, nothing else.\n\nMessage: %s", message)),
	})
	req.MaxTokens = 50

	resp, err := a.client.Complete(ctx, req)
	if err != nil {
		a.logger.Warn("thread name generation failed: %v", err)
		return fallback
	}

	name := resp.Content
	if idx := strings.IndexByte(name, '\n'); idx >= 0 {
		name = name[:idx]
	}
	name = strings.TrimSpace(name)
	name = strings.Trim(name, `"'`)
	if name == "" {
		return fallback
	}
	if runes := []rune(name); len(runes) > threadNameLimit {
		name = string(runes[:threadNameLimit-3]) + "..."
	}
	return name
}

// ClearMemory drops the conversation for a thread.
func (a *Agent) ClearMemory(threadID string) {
	a.store.Forget(threadID)
}

// MemorySize returns the number of stored messages for a thread.
func (a *Agent) MemorySize(threadID string) int {
	return a.store.Get(threadID).Len()
}

// ModelName returns the backend model identifier.
func (a *Agent) ModelName() string {
	return a.client.GetModelName()
}

func (a *Agent) newRequest(messages []llm.CompletionMessage) llm.CompletionRequest {
	req := llm.NewCompletionRequest(messages)
	if a.maxTokens > 0 {
		req.MaxTokens = a.maxTokens
	}
	if a.temp > 0 {
		req.Temperature = a.temp
	}
	return req
}
