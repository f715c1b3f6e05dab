package domain

import "time"

// ChatHistory is one question and the assistant's reply
type ChatHistory struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	OwnerEmail string    `gorm:"index;not null" json:"owner_email"`
	Message    string    `gorm:"type:text" json:"message"`
	Reply      string    `gorm:"type:text" json:"reply"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
