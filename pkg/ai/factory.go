package ai

import (
	"context"
	"fmt"

	"advisor-backend/pkg/gemini"

	"go.uber.org/zap"
)

// DynamicConfig holds AI provider configuration. The Ollama getters are read
// on every call so settings changed through the API take effect immediately.
type DynamicConfig struct {
	Provider ProviderType

	GeminiAPIKey     string
	GeminiChatModel  string
	GeminiEmbedModel string

	GetOllamaBaseURL func() string
	GetOllamaModel   func() string
	OllamaEmbedModel string
}

// NewService creates the Service selected by cfg.Provider.
// With ProviderAuto, Gemini is used when a key is present and Ollama backs it up for chat.
func NewService(ctx context.Context, cfg DynamicConfig, log *zap.Logger) (Service, error) {
	ollama := NewOllamaServiceWithGetters(cfg.GetOllamaBaseURL, cfg.GetOllamaModel, cfg.OllamaEmbedModel)

	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		g, err := gemini.NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.GeminiChatModel, cfg.GeminiEmbedModel)
		if err != nil {
			return nil, err
		}
		return g, nil

	case ProviderOllama:
		return ollama, nil

	default:
		if cfg.GeminiAPIKey == "" {
			return ollama, nil
		}
		g, err := gemini.NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.GeminiChatModel, cfg.GeminiEmbedModel)
		if err != nil {
			return nil, err
		}
		return NewFallbackService(g, ollama, log), nil
	}
}
