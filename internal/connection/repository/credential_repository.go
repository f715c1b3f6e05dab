package repository

import (
	"errors"
	"fmt"
	"time"

	"advisor-backend/internal/connection/domain"
	"advisor-backend/pkg/secret"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialRepository stores one credential per (owner, provider)
type CredentialRepository interface {
	Save(cred *domain.Credential) error
	Find(ownerEmail string, provider domain.Provider) (*domain.Credential, error)
	ListOwners(provider domain.Provider) ([]string, error)
}

type credentialRepository struct {
	db  *gorm.DB
	box *secret.Box
}

func NewCredentialRepository(db *gorm.DB, box *secret.Box) CredentialRepository {
	return &credentialRepository{db: db, box: box}
}

// Save inserts or replaces the owner's credential for the provider. An empty
// refresh token keeps the one already stored, since providers only send it on
// the first consent.
func (r *credentialRepository) Save(cred *domain.Credential) error {
	access, err := r.box.Seal(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := r.box.Seal(cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	now := time.Now()
	row := &domain.Credential{
		ID:           uuid.New().String(),
		OwnerEmail:   cred.OwnerEmail,
		Provider:     cred.Provider,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    cred.TokenType,
		Expiry:       cred.Expiry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	updates := []string{"access_token", "token_type", "expiry", "updated_at"}
	if refresh != "" {
		updates = append(updates, "refresh_token")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_email"}, {Name: "provider"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).Create(row).Error
	})
}

func (r *credentialRepository) Find(ownerEmail string, provider domain.Provider) (*domain.Credential, error) {
	var cred domain.Credential
	err := r.db.Where("owner_email = ? AND provider = ?", ownerEmail, provider).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if cred.AccessToken, err = r.box.Open(cred.AccessToken); err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if cred.RefreshToken, err = r.box.Open(cred.RefreshToken); err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	return &cred, nil
}

func (r *credentialRepository) ListOwners(provider domain.Provider) ([]string, error) {
	var owners []string
	err := r.db.Model(&domain.Credential{}).
		Where("provider = ?", provider).
		Order("owner_email").
		Pluck("owner_email", &owners).Error
	return owners, err
}
