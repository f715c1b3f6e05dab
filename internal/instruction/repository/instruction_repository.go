package repository

import (
	"strings"
	"time"

	"advisor-backend/internal/instruction/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InstructionRepository interface {
	Create(instruction *domain.Instruction) error
	ListAll() ([]domain.Instruction, error)
	ListByOwner(ownerEmail string) ([]domain.Instruction, error)

	// ClaimDispatch inserts the marker for a pair and reports whether this
	// call created it. A false result means the pair was already handled.
	ClaimDispatch(instructionID, messageID, action string) (bool, error)
	FinishDispatch(instructionID, messageID string, status domain.DispatchStatus, detail string) error
	FindDispatch(instructionID, messageID string) (*domain.Dispatch, error)
}

type instructionRepository struct {
	db *gorm.DB
}

func NewInstructionRepository(db *gorm.DB) InstructionRepository {
	return &instructionRepository{db: db}
}

func (r *instructionRepository) Create(instruction *domain.Instruction) error {
	if instruction.ID == "" {
		instruction.ID = uuid.New().String()
	}
	instruction.OwnerEmail = strings.ToLower(strings.TrimSpace(instruction.OwnerEmail))
	instruction.CreatedAt = time.Now()
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(instruction).Error
	})
}

func (r *instructionRepository) ListAll() ([]domain.Instruction, error) {
	var instructions []domain.Instruction
	err := r.db.Order("created_at ASC").Find(&instructions).Error
	return instructions, err
}

func (r *instructionRepository) ListByOwner(ownerEmail string) ([]domain.Instruction, error) {
	var instructions []domain.Instruction
	err := r.db.Where("owner_email = ?", strings.ToLower(ownerEmail)).
		Order("created_at DESC").
		Find(&instructions).Error
	return instructions, err
}

func (r *instructionRepository) ClaimDispatch(instructionID, messageID, action string) (bool, error) {
	var claimed bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.Dispatch{
			ID:            uuid.New().String(),
			InstructionID: instructionID,
			MessageID:     messageID,
			Action:        action,
			Status:        domain.DispatchClaimed,
		})
		if res.Error != nil {
			return res.Error
		}
		claimed = res.RowsAffected > 0
		return nil
	})
	return claimed, err
}

func (r *instructionRepository) FinishDispatch(instructionID, messageID string, status domain.DispatchStatus, detail string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&domain.Dispatch{}).
			Where("instruction_id = ? AND message_id = ?", instructionID, messageID).
			Updates(map[string]interface{}{
				"status":     status,
				"detail":     detail,
				"updated_at": time.Now(),
			}).Error
	})
}

func (r *instructionRepository) FindDispatch(instructionID, messageID string) (*domain.Dispatch, error) {
	var dispatch domain.Dispatch
	err := r.db.Where("instruction_id = ? AND message_id = ?", instructionID, messageID).First(&dispatch).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &dispatch, nil
}
