package domain

import (
	"errors"
	"time"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusDone    TaskStatus = "done"
)

var ErrTaskNotFound = errors.New("task not found")

// Task is a to-do item the owner asked the assistant to remember
type Task struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	OwnerEmail  string     `json:"owner_email" gorm:"index;not null"`
	Instruction string     `json:"instruction" gorm:"type:text;not null"`
	Status      TaskStatus `json:"status" gorm:"type:varchar(20);default:pending"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
