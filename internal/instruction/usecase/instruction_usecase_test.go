package usecase

import (
	"testing"

	"advisor-backend/internal/instruction/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreInstructionValidates(t *testing.T) {
	uc := NewInstructionUsecase(repository.NewInstructionRepository(newTestDB(t)))

	_, err := uc.StoreInstruction("", "do things")
	assert.ErrorIs(t, err, ErrMissingOwner)

	_, err = uc.StoreInstruction("o@x.com", "   ")
	assert.ErrorIs(t, err, ErrEmptyInstruction)

	stored, err := uc.StoreInstruction("O@x.com", "  "+alertInstruction+"\n")
	require.NoError(t, err)
	assert.Equal(t, alertInstruction, stored.Text)
	assert.Equal(t, "o@x.com", stored.OwnerEmail)

	list, err := uc.ListInstructions("o@X.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stored.ID, list[0].ID)
}
