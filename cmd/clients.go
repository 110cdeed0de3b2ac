package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/user/checkforge/pkg/config"
	"github.com/user/checkforge/pkg/llm"
	"github.com/user/checkforge/pkg/rag"
)

// resolveClient builds the LLM client from the saved configuration, falling
// back to the GOOGLE_API_KEY environment variable for gemini.
func resolveClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	provider := cfg.SelectedProvider
	if provider == "" {
		provider = "gemini"
	}

	apiKey := cfg.GetAPIKey(provider)
	if apiKey == "" && provider == "gemini" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" && provider != "local" {
		return nil, fmt.Errorf("no API key found for %s, run 'checkforge config setup' first", provider)
	}

	return llm.NewClient(ctx, provider, apiKey, cfg.SelectedModel)
}

// resolveStore opens the vector store with the configured embedding model.
func resolveStore(ctx context.Context, cfg *config.Config) (*rag.VectorStore, error) {
	apiKey := cfg.GetAPIKey(cfg.EmbeddingProvider)
	if apiKey == "" && cfg.EmbeddingProvider == "gemini" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}

	embedder, err := llm.NewEmbedder(ctx, cfg.EmbeddingProvider, apiKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	return rag.OpenVectorStore(cfg.StoreDir, cfg.EmbeddingProvider, cfg.EmbeddingModel, embedder)
}
