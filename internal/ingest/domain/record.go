package domain

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Record kinds, used as the mirror index namespace.
const (
	KindThread  = "gmail_thread"
	KindContact = "hubspot_contact"
	KindEvent   = "calendar_event"
)

// GmailThread is an ingested mail thread keyed by its Gmail thread id.
type GmailThread struct {
	ThreadID   string           `json:"thread_id" gorm:"primaryKey"`
	OwnerEmail string           `json:"owner_email" gorm:"index"`
	Subject    string           `json:"subject"`
	Snippet    string           `json:"snippet"`
	Sender     string           `json:"sender"`
	Embedding  *pgvector.Vector `json:"-" gorm:"type:vector"`
	CreatedAt  time.Time        `json:"created_at" gorm:"index"`
}

// HubSpotContact is a CRM contact keyed by its HubSpot id. Contacts created
// locally before the owner connected HubSpot use "local:<email>".
type HubSpotContact struct {
	HubSpotID  string           `json:"hubspot_id" gorm:"column:hubspot_id;primaryKey"`
	OwnerEmail string           `json:"owner_email" gorm:"index"`
	Name       string           `json:"name"`
	Email      string           `json:"email" gorm:"index"`
	Notes      string           `json:"notes"`
	Embedding  *pgvector.Vector `json:"-" gorm:"type:vector"`
	CreatedAt  time.Time        `json:"created_at"`
}

// CalendarEvent is an upcoming event keyed by its Calendar event id.
type CalendarEvent struct {
	EventID     string           `json:"event_id" gorm:"primaryKey"`
	OwnerEmail  string           `json:"owner_email" gorm:"index"`
	Summary     string           `json:"summary"`
	Description string           `json:"description"`
	StartsAt    *time.Time       `json:"starts_at,omitempty"`
	Embedding   *pgvector.Vector `json:"-" gorm:"type:vector"`
	CreatedAt   time.Time        `json:"created_at"`
}

// LocalContactKey is the natural key of a contact that exists only locally.
func LocalContactKey(email string) string {
	return "local:" + email
}

// Notes texts are what gets embedded for each record kind.

func ThreadNotes(subject, snippet string) string {
	return "Subject: " + subject + "\nSnippet: " + snippet
}

func ContactNotes(name, email string) string {
	return "Name: " + name + ", Email: " + email
}

func EventNotes(summary, description string) string {
	return "Summary: " + summary + "\nDescription: " + description
}

// NewEmbedding wraps an embedding for storage. An empty embedding is stored as NULL.
func NewEmbedding(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}
