package usecase

import (
	"errors"
	"fmt"
	"strings"

	"advisor-backend/internal/instruction/domain"
	"advisor-backend/internal/instruction/repository"
)

var (
	ErrMissingOwner     = errors.New("owner email is required")
	ErrEmptyInstruction = errors.New("instruction text is required")
)

// InstructionUsecase stores and lists owner instructions
type InstructionUsecase interface {
	StoreInstruction(ownerEmail, text string) (*domain.Instruction, error)
	ListInstructions(ownerEmail string) ([]domain.Instruction, error)
}

type instructionUsecase struct {
	repo repository.InstructionRepository
}

func NewInstructionUsecase(repo repository.InstructionRepository) InstructionUsecase {
	return &instructionUsecase{repo: repo}
}

func (u *instructionUsecase) StoreInstruction(ownerEmail, text string) (*domain.Instruction, error) {
	ownerEmail = strings.ToLower(strings.TrimSpace(ownerEmail))
	text = strings.TrimSpace(text)
	if ownerEmail == "" {
		return nil, ErrMissingOwner
	}
	if text == "" {
		return nil, ErrEmptyInstruction
	}

	instruction := &domain.Instruction{OwnerEmail: ownerEmail, Text: text}
	if err := u.repo.Create(instruction); err != nil {
		return nil, fmt.Errorf("failed to store instruction: %w", err)
	}
	return instruction, nil
}

func (u *instructionUsecase) ListInstructions(ownerEmail string) ([]domain.Instruction, error) {
	ownerEmail = strings.ToLower(strings.TrimSpace(ownerEmail))
	if ownerEmail == "" {
		return nil, ErrMissingOwner
	}
	return u.repo.ListByOwner(ownerEmail)
}
