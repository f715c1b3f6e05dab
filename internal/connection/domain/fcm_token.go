package domain

import "time"

// FCMToken represents a Firebase Cloud Messaging device token for owner alerts
type FCMToken struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	OwnerEmail string    `json:"owner_email" gorm:"index;not null"`
	Token      string    `json:"-" gorm:"uniqueIndex;not null"` // Don't expose token in JSON
	DeviceInfo string    `json:"device_info"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
