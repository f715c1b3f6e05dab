package domain

import (
	"time"

	"golang.org/x/oauth2"
)

// Provider identifies the upstream account an owner has connected.
type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderHubSpot Provider = "hubspot"
)

func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderHubSpot
}

// Credential is an owner's OAuth token for one provider. Tokens are stored
// sealed; the repository opens them on read.
type Credential struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	OwnerEmail   string    `json:"owner_email" gorm:"uniqueIndex:idx_owner_provider;not null"`
	Provider     Provider  `json:"provider" gorm:"uniqueIndex:idx_owner_provider;not null"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"-"`
	Expiry       time.Time `json:"expiry"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}
