package repository

import (
	"strings"
	"time"

	"advisor-backend/internal/task/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormTaskRepository implements TaskRepository using GORM
type gormTaskRepository struct {
	db *gorm.DB
}

// NewGormTaskRepository creates a new GORM-based TaskRepository
func NewGormTaskRepository(db *gorm.DB) TaskRepository {
	return &gormTaskRepository{db: db}
}

func (r *gormTaskRepository) Create(task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	task.OwnerEmail = strings.ToLower(strings.TrimSpace(task.OwnerEmail))
	task.Status = domain.TaskStatusPending
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(task).Error
	})
}

func (r *gormTaskRepository) FindByID(id string) (*domain.Task, error) {
	var task domain.Task
	err := r.db.Where("id = ?", id).First(&task).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *gormTaskRepository) FindByOwner(ownerEmail string) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := r.db.Where("owner_email = ?", strings.ToLower(ownerEmail)).
		Order("created_at DESC").
		Find(&tasks).Error
	return tasks, err
}

// MarkDone only touches rows still pending so the transition is one-way.
func (r *gormTaskRepository) MarkDone(ownerEmail, id string) (bool, error) {
	var found bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Task{}).Where("id = ? AND owner_email = ?", id, ownerEmail).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		found = true
		return tx.Model(&domain.Task{}).
			Where("id = ? AND status = ?", id, domain.TaskStatusPending).
			Updates(map[string]interface{}{
				"status":     domain.TaskStatusDone,
				"updated_at": time.Now(),
			}).Error
	})
	return found, err
}
