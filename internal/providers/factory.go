package providers

import (
	"fmt"
	"os"

	"github.com/ChamsBouzaiene/tern/internal/engine"
)

// NewLLMClientFromEnv creates an engine.LLMClient from environment
// variables, returning the client and the model name to use with it.
func NewLLMClientFromEnv() (engine.LLMClient, string, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = "anthropic"
	}

	switch provider {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		modelName := os.Getenv("ANTHROPIC_MODEL")
		if modelName == "" {
			modelName = "claude-sonnet-4-20250514"
		}
		return NewAnthropicClient(apiKey), modelName, nil

	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY not set")
		}
		modelName := os.Getenv("OPENAI_MODEL")
		if modelName == "" {
			modelName = "gpt-4o-mini"
		}
		// OPENAI_BASE_URL supports OpenAI-compatible endpoints.
		return NewOpenAIClient(apiKey, os.Getenv("OPENAI_BASE_URL")), modelName, nil

	case "ollama":
		// Local Ollama server exposes an OpenAI-compatible API.
		baseURL := os.Getenv("OLLAMA_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		modelName := os.Getenv("OLLAMA_MODEL")
		if modelName == "" {
			modelName = "qwen2.5-coder"
		}
		return NewOpenAIClient("ollama", baseURL), modelName, nil

	default:
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER %q (want anthropic, openai or ollama)", provider)
	}
}
