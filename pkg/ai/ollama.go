package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaService implements Service against a local Ollama server.
type OllamaService struct {
	getBaseURL func() string // Dynamic getter for BaseURL
	getModel   func() string // Dynamic getter for Model
	embedModel string
	httpClient *http.Client
}

// NewOllamaService creates a new Ollama service with static settings
func NewOllamaService(baseURL, model, embedModel string) *OllamaService {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return NewOllamaServiceWithGetters(
		func() string { return baseURL },
		func() string { return model },
		embedModel,
	)
}

// NewOllamaServiceWithGetters creates an Ollama service whose base URL and chat
// model can be changed at runtime through the settings API.
func NewOllamaServiceWithGetters(getBaseURL, getModel func() string, embedModel string) *OllamaService {
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	return &OllamaService{
		getBaseURL: getBaseURL,
		getModel:   getModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OllamaService) Name() string {
	return "ollama:" + o.getModel()
}

// Complete implements Responder
func (o *OllamaService) Complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model":  o.getModel(),
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.3,
		},
	}

	var result struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := o.post(ctx, "/api/generate", payload, &result); err != nil {
		return "", err
	}

	reply := strings.TrimSpace(result.Response)
	if reply == "" {
		return "", fmt.Errorf("ollama returned an empty reply")
	}
	return reply, nil
}

// Embed implements Embedder
func (o *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]interface{}{
		"model":  o.embedModel,
		"prompt": text,
	}

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := o.post(ctx, "/api/embeddings", payload, &result); err != nil {
		return nil, err
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned no embedding")
	}

	vec := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (o *OllamaService) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.getBaseURL()+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
