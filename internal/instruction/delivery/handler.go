package delivery

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	connDelivery "advisor-backend/internal/connection/delivery"
	"advisor-backend/internal/instruction/usecase"

	"github.com/gin-gonic/gin"
)

// InstructionHandler handles instruction authoring and the operator check
type InstructionHandler struct {
	instructionUsecase usecase.InstructionUsecase
	checker            usecase.Checker
}

func NewInstructionHandler(instructionUsecase usecase.InstructionUsecase, checker usecase.Checker) *InstructionHandler {
	return &InstructionHandler{
		instructionUsecase: instructionUsecase,
		checker:            checker,
	}
}

type storeInstructionRequest struct {
	Instruction string `json:"instruction"`
}

// readInstruction accepts a JSON body {"instruction": ...}, a JSON string or
// the raw instruction text.
func readInstruction(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}

	if json.Valid(body) {
		var req storeInstructionRequest
		if err := json.Unmarshal(body, &req); err == nil {
			return req.Instruction, nil
		}
		var text string
		if err := json.Unmarshal(body, &text); err == nil {
			return text, nil
		}
	}
	return string(body), nil
}

// StoreInstruction saves an instruction for the signed-in owner
// POST /api/instructions
func (h *InstructionHandler) StoreInstruction(c *gin.Context) {
	text, err := readInstruction(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	instruction, err := h.instructionUsecase.StoreInstruction(connDelivery.Owner(c), text)
	if err != nil {
		if errors.Is(err, usecase.ErrMissingOwner) || errors.Is(err, usecase.ErrEmptyInstruction) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":     "Instruction saved",
		"instruction": instruction,
	})
}

// ListInstructions GET /api/instructions
func (h *InstructionHandler) ListInstructions(c *gin.Context) {
	instructions, err := h.instructionUsecase.ListInstructions(connDelivery.Owner(c))
	if err != nil {
		if errors.Is(err, usecase.ErrMissingOwner) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"instructions": instructions})
}

// RunCheck runs one instruction pass synchronously and returns its log
// GET /api/simulate/instruction-check
func (h *InstructionHandler) RunCheck(c *gin.Context) {
	logs, ran := h.checker.TryRunPass(c.Request.Context())
	if !ran {
		c.JSON(http.StatusOK, gin.H{
			"message": "An instruction check is already running",
			"logs":    logs,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Instruction check complete",
		"logs":    logs,
	})
}
