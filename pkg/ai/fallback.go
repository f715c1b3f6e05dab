package ai

import (
	"context"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
)

// FallbackService routes chat between two providers:
// Gemini first (better answers), Ollama when Gemini fails.
// Embeddings always come from the primary provider; vectors from different
// models live in different spaces and cannot be ranked against each other.
type FallbackService struct {
	primary   Service
	secondary Service
	log       *zap.Logger
}

func NewFallbackService(primary, secondary Service, log *zap.Logger) *FallbackService {
	return &FallbackService{
		primary:   primary,
		secondary: secondary,
		log:       log.Named("ai"),
	}
}

func (f *FallbackService) Name() string {
	return "fallback(" + f.primary.Name() + "," + f.secondary.Name() + ")"
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	return containsAny(err.Error(),
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"EOF",
	)
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	return containsAny(err.Error(),
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
	)
}

func containsAny(s string, indicators ...string) bool {
	s = strings.ToLower(s)
	for _, indicator := range indicators {
		if strings.Contains(s, strings.ToLower(indicator)) {
			return true
		}
	}
	return false
}

func (f *FallbackService) Complete(ctx context.Context, prompt string) (string, error) {
	reply, err := f.primary.Complete(ctx, prompt)
	if err == nil {
		return reply, nil
	}

	switch {
	case isQuotaError(err):
		f.log.Warn("primary provider quota exhausted, falling back", zap.String("primary", f.primary.Name()), zap.Error(err))
	case isConnectionError(err):
		f.log.Warn("primary provider unreachable, falling back", zap.String("primary", f.primary.Name()), zap.Error(err))
	default:
		f.log.Warn("primary provider failed, falling back", zap.String("primary", f.primary.Name()), zap.Error(err))
	}

	reply, fbErr := f.secondary.Complete(ctx, prompt)
	if fbErr != nil {
		return "", fmt.Errorf("all providers failed: primary: %v; secondary: %w", err, fbErr)
	}
	return reply, nil
}

func (f *FallbackService) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.primary.Embed(ctx, text)
}
