package repository

import (
	"strings"
	"time"

	"advisor-backend/internal/chat/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatRepository stores chat history
type ChatRepository interface {
	Save(entry *domain.ChatHistory) error
	ListByOwner(ownerEmail string, limit int) ([]domain.ChatHistory, error)
}

type chatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Save(entry *domain.ChatHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.OwnerEmail = strings.ToLower(strings.TrimSpace(entry.OwnerEmail))
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(entry).Error
	})
}

// ListByOwner returns the most recent entries in chronological order
func (r *chatRepository) ListByOwner(ownerEmail string, limit int) ([]domain.ChatHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []domain.ChatHistory
	err := r.db.Where("owner_email = ?", strings.ToLower(ownerEmail)).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
