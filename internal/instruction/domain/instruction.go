package domain

import (
	"strings"
	"time"
)

// Instruction is a standing natural-language rule authored by an owner.
// Instructions are never edited or deleted once stored.
type Instruction struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	OwnerEmail string    `gorm:"index;not null" json:"owner_email"`
	Text       string    `gorm:"type:text;not null" json:"instruction"`
	CreatedAt  time.Time `json:"created_at"`
}

// MissingContactPhrase is the trigger recognised in instruction text
const MissingContactPhrase = "not in hubspot"

// WantsMissingContactCreated reports whether the instruction asks for unknown
// senders to be added as contacts.
func (i Instruction) WantsMissingContactCreated() bool {
	return strings.Contains(strings.ToLower(i.Text), MissingContactPhrase)
}

type DispatchStatus string

const (
	DispatchClaimed    DispatchStatus = "claimed"
	DispatchDispatched DispatchStatus = "dispatched"
	DispatchFailed     DispatchStatus = "failed"
)

// Dispatch marks an (instruction, message) pair whose action has been
// attempted. A pair gets at most one row.
type Dispatch struct {
	ID            string         `gorm:"primaryKey" json:"id"`
	InstructionID string         `gorm:"uniqueIndex:idx_dispatch_pair;not null" json:"instruction_id"`
	MessageID     string         `gorm:"uniqueIndex:idx_dispatch_pair;not null" json:"message_id"`
	Action        string         `json:"action"`
	Status        DispatchStatus `gorm:"type:varchar(20);not null" json:"status"`
	Detail        string         `gorm:"type:text" json:"detail"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
