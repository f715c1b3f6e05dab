package usecase

import (
	"errors"
	"fmt"
	"strings"

	"advisor-backend/internal/task/domain"
	"advisor-backend/internal/task/repository"
)

var (
	ErrMissingOwner       = errors.New("owner email is required")
	ErrMissingInstruction = errors.New("task instruction is required")
)

// taskUsecase implements TaskUsecase interface
type taskUsecase struct {
	taskRepo repository.TaskRepository
}

// NewTaskUsecase creates a new instance of taskUsecase
func NewTaskUsecase(taskRepo repository.TaskRepository) TaskUsecase {
	return &taskUsecase{taskRepo: taskRepo}
}

func (u *taskUsecase) CreateTask(ownerEmail, instruction string) (*domain.Task, error) {
	ownerEmail = strings.ToLower(strings.TrimSpace(ownerEmail))
	instruction = strings.TrimSpace(instruction)
	if ownerEmail == "" {
		return nil, ErrMissingOwner
	}
	if instruction == "" {
		return nil, ErrMissingInstruction
	}

	task := &domain.Task{OwnerEmail: ownerEmail, Instruction: instruction}
	if err := u.taskRepo.Create(task); err != nil {
		return nil, fmt.Errorf("failed to store task: %w", err)
	}
	return task, nil
}

func (u *taskUsecase) ListTasks(ownerEmail string) ([]*domain.Task, error) {
	ownerEmail = strings.TrimSpace(ownerEmail)
	if ownerEmail == "" {
		return nil, ErrMissingOwner
	}
	return u.taskRepo.FindByOwner(ownerEmail)
}

func (u *taskUsecase) MarkDone(ownerEmail, taskID string) (*domain.Task, error) {
	found, err := u.taskRepo.MarkDone(strings.ToLower(strings.TrimSpace(ownerEmail)), taskID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrTaskNotFound
	}
	return u.taskRepo.FindByID(taskID)
}
