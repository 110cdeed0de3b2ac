package llm

import "context"

// Client defines the interface for different AI models
type Client interface {
	// Complete sends a single prompt and returns the raw text answer.
	Complete(ctx context.Context, prompt string) (string, error)
	// StructuredPredict sends a prompt and decodes the model's JSON answer
	// into out. Returns an error if the answer does not conform.
	StructuredPredict(ctx context.Context, prompt string, out interface{}) error
	ListModels(ctx context.Context) ([]string, error)
}

// Embedder turns text into a vector in the configured embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
