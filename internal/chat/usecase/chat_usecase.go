package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"advisor-backend/internal/chat/domain"
	"advisor-backend/internal/chat/repository"
	ingestDomain "advisor-backend/internal/ingest/domain"
	"advisor-backend/pkg/ai"

	"go.uber.org/zap"
)

// ContextSize is how many records of each kind are given to the model
const ContextSize = 5

var (
	ErrEmptyQuery   = errors.New("query is required")
	ErrMissingOwner = errors.New("owner email is required")
)

// Neighbours finds the owner's records closest to a query vector
type Neighbours interface {
	NearestThreads(ownerEmail string, vec []float32, k int) ([]ingestDomain.GmailThread, error)
	NearestContacts(ownerEmail string, vec []float32, k int) ([]ingestDomain.HubSpotContact, error)
	NearestEvents(ownerEmail string, vec []float32, k int) ([]ingestDomain.CalendarEvent, error)
}

type ChatUsecase interface {
	Ask(ctx context.Context, ownerEmail, query string) (string, error)
	History(ownerEmail string, limit int) ([]domain.ChatHistory, error)
}

type chatUsecase struct {
	repo       repository.ChatRepository
	neighbours Neighbours
	ai         ai.Service
	log        *zap.Logger
}

func NewChatUsecase(repo repository.ChatRepository, neighbours Neighbours, aiService ai.Service, log *zap.Logger) ChatUsecase {
	return &chatUsecase{
		repo:       repo,
		neighbours: neighbours,
		ai:         aiService,
		log:        log.Named("chat"),
	}
}

// Ask answers a question using the owner's nearest ingested records as
// context. The exchange is saved to history on a best-effort basis.
func (u *chatUsecase) Ask(ctx context.Context, ownerEmail, query string) (string, error) {
	ownerEmail = strings.ToLower(strings.TrimSpace(ownerEmail))
	if ownerEmail == "" {
		return "", ErrMissingOwner
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	vec, err := u.ai.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	reply, err := u.ai.Complete(ctx, BuildPrompt(query, u.gatherContext(ownerEmail, vec)))
	if err != nil {
		return "", fmt.Errorf("%s failed to answer: %w", u.ai.Name(), err)
	}

	if err := u.repo.Save(&domain.ChatHistory{OwnerEmail: ownerEmail, Message: query, Reply: reply}); err != nil {
		u.log.Warn("failed to save chat history", zap.String("owner", ownerEmail), zap.Error(err))
	}
	return reply, nil
}

// gatherContext collects the nearest records of each kind. A failing lookup
// only removes that kind from the context.
func (u *chatUsecase) gatherContext(ownerEmail string, vec []float32) []string {
	var parts []string

	threads, err := u.neighbours.NearestThreads(ownerEmail, vec, ContextSize)
	if err != nil {
		u.log.Warn("thread lookup failed", zap.Error(err))
	}
	for _, t := range threads {
		parts = append(parts, ingestDomain.ThreadNotes(t.Subject, t.Snippet))
	}

	contacts, err := u.neighbours.NearestContacts(ownerEmail, vec, ContextSize)
	if err != nil {
		u.log.Warn("contact lookup failed", zap.Error(err))
	}
	for _, c := range contacts {
		parts = append(parts, fmt.Sprintf("Name: %s (%s)\nNotes: %s", c.Name, c.Email, c.Notes))
	}

	events, err := u.neighbours.NearestEvents(ownerEmail, vec, ContextSize)
	if err != nil {
		u.log.Warn("event lookup failed", zap.Error(err))
	}
	for _, e := range events {
		parts = append(parts, ingestDomain.EventNotes(e.Summary, e.Description))
	}

	return parts
}

func BuildPrompt(query string, records []string) string {
	return fmt.Sprintf(
		"You are a helpful financial AI assistant. Use the context below to answer the user query.\n\nContext:\n%s\n\nUser Query: %s",
		strings.Join(records, "\n\n"), query,
	)
}

func (u *chatUsecase) History(ownerEmail string, limit int) ([]domain.ChatHistory, error) {
	return u.repo.ListByOwner(ownerEmail, limit)
}
