package repository

import "advisor-backend/internal/task/domain"

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Create creates a new task
	Create(task *domain.Task) error

	// FindByID finds a task by its ID
	FindByID(id string) (*domain.Task, error)

	// FindByOwner lists an owner's tasks, newest first
	FindByOwner(ownerEmail string) ([]*domain.Task, error)

	// MarkDone moves one of the owner's pending tasks to done. It reports false
	// when the owner has no such task; a task that is already done is left unchanged.
	MarkDone(ownerEmail, id string) (bool, error)
}
