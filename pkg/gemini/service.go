package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type GeminiService struct {
	client     *genai.Client
	chatModel  string
	embedModel string
}

func NewGeminiService(ctx context.Context, apiKey, chatModel, embedModel string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if chatModel == "" {
		chatModel = "gemini-2.0-flash"
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiService{
		client:     client,
		chatModel:  chatModel,
		embedModel: embedModel,
	}, nil
}

// Complete sends a single-turn prompt and returns the text of the first candidate.
func (g *GeminiService) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.chatModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no reply returned")
	}
	return text, nil
}

func (g *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return result.Embeddings[0].Values, nil
}

func (g *GeminiService) Name() string {
	return "gemini:" + g.chatModel
}
