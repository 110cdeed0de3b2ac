package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LocalClient talks to a llama.cpp compatible server, so models can be run
// locally without any cloud API key. The reference is the server base URL.
type LocalClient struct {
	BaseURL string

	httpClient *http.Client
}

func NewLocalClient(baseURL string) *LocalClient {
	return &LocalClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 300 * time.Second},
	}
}

func (p *LocalClient) ListModels(ctx context.Context) ([]string, error) {
	// llama.cpp serves a single loaded model
	return []string{p.BaseURL}, nil
}

func (p *LocalClient) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"prompt":      prompt,
		"temperature": 0.6,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.BaseURL+"/completion", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("local model server returned status: %s", resp.Status)
	}

	var result struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Content, nil
}

func (p *LocalClient) StructuredPredict(ctx context.Context, prompt string, out interface{}) error {
	text, err := p.Complete(ctx, prompt+"\nAnswer only with a JSON object.")
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), out); err != nil {
		return fmt.Errorf("structured output validation failed: %w", err)
	}
	return nil
}
