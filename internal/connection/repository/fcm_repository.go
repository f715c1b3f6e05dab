package repository

import (
	"time"

	"advisor-backend/internal/connection/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FCMTokenRepository defines the interface for FCM token operations
type FCMTokenRepository interface {
	SaveToken(ownerEmail, token, deviceInfo string) error
	GetTokensByOwner(ownerEmail string) ([]domain.FCMToken, error)
	DeleteToken(ownerEmail, token string) error
}

type fcmTokenRepository struct {
	db *gorm.DB
}

func NewFCMTokenRepository(db *gorm.DB) FCMTokenRepository {
	return &fcmTokenRepository{db: db}
}

// SaveToken saves or reassigns a device token (atomic upsert)
func (r *fcmTokenRepository) SaveToken(ownerEmail, token, deviceInfo string) error {
	fcmToken := &domain.FCMToken{
		ID:         uuid.New().String(),
		OwnerEmail: ownerEmail,
		Token:      token,
		DeviceInfo: deviceInfo,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	// INSERT ... ON CONFLICT (token) DO UPDATE
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_email", "device_info", "updated_at"}),
	}).Create(fcmToken).Error
}

func (r *fcmTokenRepository) GetTokensByOwner(ownerEmail string) ([]domain.FCMToken, error) {
	var tokens []domain.FCMToken
	if err := r.db.Where("owner_email = ?", ownerEmail).Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeleteToken removes a device token only when it belongs to the owner
func (r *fcmTokenRepository) DeleteToken(ownerEmail, token string) error {
	return r.db.Where("owner_email = ? AND token = ?", ownerEmail, token).Delete(&domain.FCMToken{}).Error
}
