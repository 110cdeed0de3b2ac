package llm

import (
	"context"
	"fmt"
	"strings"
)

// NewClient resolves a Client from a provider name and model reference.
// For the local provider the reference is a server URL and no key is needed.
func NewClient(ctx context.Context, providerName, apiKey, modelReference string) (Client, error) {
	switch providerName {
	case "gemini":
		if apiKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGeminiClient(ctx, apiKey, modelReference)
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIClient(apiKey, modelReference), nil
	case "local":
		if !strings.HasPrefix(modelReference, "http://") && !strings.HasPrefix(modelReference, "https://") {
			return nil, fmt.Errorf("local provider requires a server URL as model reference, got %q", modelReference)
		}
		return NewLocalClient(modelReference), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", providerName)
	}
}

// NewEmbedder resolves an Embedder from a provider name and model reference.
func NewEmbedder(ctx context.Context, providerName, apiKey, modelReference string) (Embedder, error) {
	switch providerName {
	case "gemini":
		if apiKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGeminiEmbedder(ctx, apiKey, modelReference)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", providerName)
	}
}
