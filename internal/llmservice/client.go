package llmservice

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"keyword-rag/internal/config"
)

// NewLLM builds the chat model for the configured provider. The openai provider
// talks to any OpenAI-compatible endpoint (Groq, OpenRouter, OpenAI).
func NewLLM(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().
		Str("provider", llmConfig.Provider).
		Str("base_url", llmConfig.BaseURL).
		Str("model", llmConfig.Model).
		Msg("Creating llm client")

	switch llmConfig.Provider {
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		return ollama.New(opts...)
	case config.ProviderOpenAI, "":
		if llmConfig.Key == "" {
			return nil, fmt.Errorf("llm key is required for provider %q", config.ProviderOpenAI)
		}
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", llmConfig.Provider)
	}
}

// CallOptions maps the generation settings of llmConfig to langchaingo options.
func CallOptions(llmConfig *config.LLMConfig) []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(llmConfig.Temperature)}
	if llmConfig.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(llmConfig.MaxTokens))
	}
	return opts
}
