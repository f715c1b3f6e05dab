package ai

import "context"

// Responder maps a prompt to a reply.
type Responder interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service is implemented by every AI provider (Gemini, Ollama, fallback).
type Service interface {
	Responder
	Embedder
	Name() string
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
