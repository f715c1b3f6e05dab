package delivery

import (
	"errors"
	"net/http"

	connDelivery "advisor-backend/internal/connection/delivery"
	"advisor-backend/internal/task/domain"
	"advisor-backend/internal/task/usecase"

	"github.com/gin-gonic/gin"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	taskUsecase usecase.TaskUsecase
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskUsecase usecase.TaskUsecase) *TaskHandler {
	return &TaskHandler{
		taskUsecase: taskUsecase,
	}
}

// CreateTaskRequest represents the request body for creating a task
type CreateTaskRequest struct {
	Instruction string `json:"instruction" binding:"required"`
}

// GetTasks returns the signed-in owner's tasks
// GET /api/tasks
func (h *TaskHandler) GetTasks(c *gin.Context) {
	tasks, err := h.taskUsecase.ListTasks(connDelivery.Owner(c))
	if err != nil {
		writeTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// CreateTask stores a new task
// POST /api/tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskUsecase.CreateTask(connDelivery.Owner(c), req.Instruction)
	if err != nil {
		writeTaskError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Task stored successfully", "task": task})
}

// MarkDone marks a task as done
// POST /api/tasks/:id/done
func (h *TaskHandler) MarkDone(c *gin.Context) {
	task, err := h.taskUsecase.MarkDone(connDelivery.Owner(c), c.Param("id"))
	if err != nil {
		writeTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task marked as done", "task": task})
}

func writeTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
	case errors.Is(err, usecase.ErrMissingOwner), errors.Is(err, usecase.ErrMissingInstruction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
