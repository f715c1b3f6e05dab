package repository

import (
	"errors"
	"strings"
	"time"

	"advisor-backend/internal/ingest/domain"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordRepository stores ingested records. Inserts never update an existing
// row and each runs in its own transaction, so one failed write cannot undo
// another.
type RecordRepository interface {
	InsertThreadIfAbsent(thread *domain.GmailThread) (bool, error)
	InsertContactIfAbsent(contact *domain.HubSpotContact) (bool, error)
	InsertEventIfAbsent(event *domain.CalendarEvent) (bool, error)

	FindThread(threadID string) (*domain.GmailThread, error)
	RecentThreads(ownerEmail string, since time.Time) ([]domain.GmailThread, error)
	FindContactByEmail(ownerEmail, email string) (*domain.HubSpotContact, error)

	// Lookups below only ever return the owner's records
	NearestThreads(ownerEmail string, vec []float32, k int) ([]domain.GmailThread, error)
	NearestContacts(ownerEmail string, vec []float32, k int) ([]domain.HubSpotContact, error)
	NearestEvents(ownerEmail string, vec []float32, k int) ([]domain.CalendarEvent, error)

	ThreadsByIDs(ownerEmail string, ids []string) ([]domain.GmailThread, error)
	ContactsByIDs(ownerEmail string, ids []string) ([]domain.HubSpotContact, error)
	EventsByIDs(ownerEmail string, ids []string) ([]domain.CalendarEvent, error)
}

type recordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

// insertIfAbsent runs INSERT ... ON CONFLICT DO NOTHING and reports whether a
// row was written.
func (r *recordRepository) insertIfAbsent(row interface{}) (bool, error) {
	var inserted bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	return inserted, err
}

func (r *recordRepository) InsertThreadIfAbsent(thread *domain.GmailThread) (bool, error) {
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now()
	}
	return r.insertIfAbsent(thread)
}

func (r *recordRepository) InsertContactIfAbsent(contact *domain.HubSpotContact) (bool, error) {
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now()
	}
	return r.insertIfAbsent(contact)
}

func (r *recordRepository) InsertEventIfAbsent(event *domain.CalendarEvent) (bool, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return r.insertIfAbsent(event)
}

func (r *recordRepository) FindThread(threadID string) (*domain.GmailThread, error) {
	var thread domain.GmailThread
	if err := r.db.Where("thread_id = ?", threadID).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &thread, nil
}

// RecentThreads returns the owner's threads ingested at or after since, newest first.
func (r *recordRepository) RecentThreads(ownerEmail string, since time.Time) ([]domain.GmailThread, error) {
	var threads []domain.GmailThread
	err := r.db.Where("owner_email = ? AND created_at >= ?", ownerEmail, since).
		Order("created_at DESC").
		Find(&threads).Error
	return threads, err
}

// FindContactByEmail matches the owner's contacts case-insensitively.
func (r *recordRepository) FindContactByEmail(ownerEmail, email string) (*domain.HubSpotContact, error) {
	var contact domain.HubSpotContact
	err := r.db.Where("owner_email = ? AND LOWER(email) = ?", ownerEmail, strings.ToLower(strings.TrimSpace(email))).
		First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

// nearest orders the owner's rows by cosine distance; requires the pgvector extension.
func (r *recordRepository) nearest(dest interface{}, ownerEmail string, vec []float32, k int) error {
	return r.db.Where("owner_email = ?", ownerEmail).
		Clauses(clause.OrderBy{
			Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []interface{}{pgvector.NewVector(vec)}},
		}).Limit(k).Find(dest).Error
}

func (r *recordRepository) NearestThreads(ownerEmail string, vec []float32, k int) ([]domain.GmailThread, error) {
	var threads []domain.GmailThread
	err := r.nearest(&threads, ownerEmail, vec, k)
	return threads, err
}

func (r *recordRepository) NearestContacts(ownerEmail string, vec []float32, k int) ([]domain.HubSpotContact, error) {
	var contacts []domain.HubSpotContact
	err := r.nearest(&contacts, ownerEmail, vec, k)
	return contacts, err
}

func (r *recordRepository) NearestEvents(ownerEmail string, vec []float32, k int) ([]domain.CalendarEvent, error) {
	var events []domain.CalendarEvent
	err := r.nearest(&events, ownerEmail, vec, k)
	return events, err
}

// The *ByIDs lookups keep the order of ids, which is the mirror's ranking.

func (r *recordRepository) ThreadsByIDs(ownerEmail string, ids []string) ([]domain.GmailThread, error) {
	var rows []domain.GmailThread
	if len(ids) == 0 {
		return rows, nil
	}
	if err := r.db.Where("owner_email = ? AND thread_id IN ?", ownerEmail, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return orderBy(ids, rows, func(t domain.GmailThread) string { return t.ThreadID }), nil
}

func (r *recordRepository) ContactsByIDs(ownerEmail string, ids []string) ([]domain.HubSpotContact, error) {
	var rows []domain.HubSpotContact
	if len(ids) == 0 {
		return rows, nil
	}
	if err := r.db.Where("owner_email = ? AND hubspot_id IN ?", ownerEmail, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return orderBy(ids, rows, func(c domain.HubSpotContact) string { return c.HubSpotID }), nil
}

func (r *recordRepository) EventsByIDs(ownerEmail string, ids []string) ([]domain.CalendarEvent, error) {
	var rows []domain.CalendarEvent
	if len(ids) == 0 {
		return rows, nil
	}
	if err := r.db.Where("owner_email = ? AND event_id IN ?", ownerEmail, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return orderBy(ids, rows, func(e domain.CalendarEvent) string { return e.EventID }), nil
}

func orderBy[T any](ids []string, rows []T, key func(T) string) []T {
	byKey := make(map[string]T, len(rows))
	for _, row := range rows {
		byKey[key(row)] = row
	}
	out := make([]T, 0, len(rows))
	for _, id := range ids {
		if row, ok := byKey[id]; ok {
			out = append(out, row)
		}
	}
	return out
}
