package usecase

import "advisor-backend/internal/task/domain"

// TaskUsecase defines the interface for task business logic
type TaskUsecase interface {
	// CreateTask stores a pending task for the owner
	CreateTask(ownerEmail, instruction string) (*domain.Task, error)

	// ListTasks returns the owner's tasks, newest first
	ListTasks(ownerEmail string) ([]*domain.Task, error)

	// MarkDone marks one of the owner's tasks done; marking a done task again
	// is a no-op
	MarkDone(ownerEmail, taskID string) (*domain.Task, error)
}
