package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	connDomain "advisor-backend/internal/connection/domain"
	"advisor-backend/internal/ingest/domain"
	"advisor-backend/internal/ingest/repository"
	"advisor-backend/pkg/ai"
	"advisor-backend/pkg/calendar"
	"advisor-backend/pkg/gmail"
	"advisor-backend/pkg/hubspot"
	"advisor-backend/pkg/mailaddr"
	"advisor-backend/pkg/retry"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultThreadCount = 10
	DefaultEventCount  = 10
	DefaultSearchLimit = 5
)

var (
	ErrMissingCredentials = errors.New("provide an owner email or an access token")
	ErrMissingOwner       = errors.New("owner email is required")
	ErrOwnerMismatch      = errors.New("access token belongs to a different account")
)

// TokenSources resolves owner-scoped OAuth tokens
type TokenSources interface {
	TokenSource(ctx context.Context, ownerEmail string, provider connDomain.Provider) (oauth2.TokenSource, error)
}

type MailReader interface {
	ListRecentThreads(ctx context.Context, ts oauth2.TokenSource, max int64) ([]string, error)
	GetThreadDetail(ctx context.Context, ts oauth2.TokenSource, threadID string) (*gmail.ThreadDetail, error)
	ProfileEmail(ctx context.Context, ts oauth2.TokenSource) (string, error)
}

type ContactLister interface {
	ListContacts(ctx context.Context, ts oauth2.TokenSource) ([]hubspot.Contact, error)
}

type EventLister interface {
	ListUpcomingEvents(ctx context.Context, ts oauth2.TokenSource, max int64) ([]calendar.Event, error)
	PrimaryEmail(ctx context.Context, ts oauth2.TokenSource) (string, error)
}

// SemanticSearcher ranks natural keys for an owner from the vector index
type SemanticSearcher interface {
	SemanticSearch(ctx context.Context, ownerEmail, kind, query string, limit int) ([]string, error)
}

// Request identifies whose data to ingest. AccessToken, when set, is used as
// is instead of the owner's stored connection; records are then stored under
// the account the token belongs to.
type Request struct {
	Owner       string
	AccessToken string
	Max         int64
}

// Result summarizes one ingestion run for one source
type Result struct {
	Source   string `json:"source"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

type IngestUsecase interface {
	IngestGmail(ctx context.Context, req Request) (*Result, error)
	IngestHubSpot(ctx context.Context, req Request) (*Result, error)
	IngestCalendar(ctx context.Context, req Request) (*Result, error)
	IngestAll(ctx context.Context, ownerEmail string) []Result

	GetThread(ctx context.Context, req Request, threadID string) (*gmail.ThreadDetail, error)

	SearchThreads(ctx context.Context, ownerEmail, query string, k int) ([]domain.GmailThread, error)
	SearchContacts(ctx context.Context, ownerEmail, query string, k int) ([]domain.HubSpotContact, error)
	SearchEvents(ctx context.Context, ownerEmail, query string, k int) ([]domain.CalendarEvent, error)

	SetMirror(worker *MirrorWorker, searcher SemanticSearcher)
}

type ingestUsecase struct {
	repo       repository.RecordRepository
	tokens     TokenSources
	mail       MailReader
	contacts   ContactLister
	events     EventLister
	embedder   ai.Embedder
	dimensions int
	policy     retry.Policy
	log        *zap.Logger

	mirror   *MirrorWorker
	searcher SemanticSearcher
}

func NewIngestUsecase(
	repo repository.RecordRepository,
	tokens TokenSources,
	mail MailReader,
	contacts ContactLister,
	events EventLister,
	embedder ai.Embedder,
	dimensions int,
	policy retry.Policy,
	log *zap.Logger,
) IngestUsecase {
	return &ingestUsecase{
		repo:       repo,
		tokens:     tokens,
		mail:       mail,
		contacts:   contacts,
		events:     events,
		embedder:   embedder,
		dimensions: dimensions,
		policy:     policy,
		log:        log.Named("ingest"),
	}
}

// SetMirror enables asynchronous indexing and owner-scoped semantic search
func (u *ingestUsecase) SetMirror(worker *MirrorWorker, searcher SemanticSearcher) {
	u.mirror = worker
	u.searcher = searcher
}

// accountResolver returns the account email a raw token is authorized for
type accountResolver func(ctx context.Context, ts oauth2.TokenSource) (string, error)

func (u *ingestUsecase) tokenSource(ctx context.Context, req Request, provider connDomain.Provider) (oauth2.TokenSource, error) {
	if req.AccessToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: req.AccessToken, TokenType: "Bearer"}), nil
	}
	if req.Owner == "" {
		return nil, ErrMissingCredentials
	}
	return u.tokens.TokenSource(ctx, req.Owner, provider)
}

// ownedSource returns the token source for req and the owner its records
// belong to. A raw token is attributed to the account it was issued for when
// resolve is set; without a resolver the request must name the owner.
func (u *ingestUsecase) ownedSource(ctx context.Context, req Request, provider connDomain.Provider, resolve accountResolver) (oauth2.TokenSource, string, error) {
	owner := strings.ToLower(strings.TrimSpace(req.Owner))
	req.Owner = owner
	ts, err := u.tokenSource(ctx, req, provider)
	if err != nil {
		return nil, "", err
	}
	if req.AccessToken == "" {
		return ts, owner, nil
	}
	if resolve == nil {
		if owner == "" {
			return nil, "", ErrMissingOwner
		}
		return ts, owner, nil
	}

	account, err := retry.Do(ctx, u.policy, func(ctx context.Context) (string, error) {
		return resolve(ctx, ts)
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve token account: %w", err)
	}
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return nil, "", ErrMissingOwner
	}
	if owner != "" && owner != account {
		u.log.Warn("access token owner mismatch", zap.String("requested", owner), zap.String("account", account))
		return nil, "", fmt.Errorf("%w: requested %s", ErrOwnerMismatch, owner)
	}
	return ts, account, nil
}

func (u *ingestUsecase) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := u.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if u.dimensions > 0 && len(vec) != u.dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), u.dimensions)
	}
	return vec, nil
}

func (u *ingestUsecase) enqueueMirror(kind, key, owner, text string) {
	if u.mirror == nil {
		return
	}
	if !u.mirror.Enqueue(MirrorJob{Kind: kind, Key: key, Owner: owner, Text: text}) {
		u.log.Warn("mirror queue full, record not indexed", zap.String("kind", kind), zap.String("key", key))
	}
}

func (u *ingestUsecase) IngestGmail(ctx context.Context, req Request) (*Result, error) {
	ts, owner, err := u.ownedSource(ctx, req, connDomain.ProviderGoogle, u.mail.ProfileEmail)
	if err != nil {
		return nil, err
	}

	max := req.Max
	if max <= 0 {
		max = DefaultThreadCount
	}

	ids, err := retry.Do(ctx, u.policy, func(ctx context.Context) ([]string, error) {
		return u.mail.ListRecentThreads(ctx, ts, max)
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Source: "gmail", Fetched: len(ids)}
	for _, id := range ids {
		detail, err := retry.Do(ctx, u.policy, func(ctx context.Context) (*gmail.ThreadDetail, error) {
			return u.mail.GetThreadDetail(ctx, ts, id)
		})
		if err != nil {
			u.log.Warn("thread detail failed", zap.String("thread", id), zap.Error(err))
			result.Skipped++
			continue
		}
		if !detail.HasMessages() {
			result.Skipped++
			continue
		}

		subject := detail.Subject
		if subject == "" {
			subject = "No Subject"
		}
		sender := detail.From
		if addr, ok := mailaddr.ParseFrom(detail.From); ok {
			sender = addr.Email
		}

		notes := domain.ThreadNotes(subject, detail.Snippet)
		vec, err := u.embed(ctx, notes)
		if err != nil {
			u.log.Warn("embedding failed, skipping thread", zap.String("thread", id), zap.Error(err))
			result.Skipped++
			continue
		}

		inserted, err := u.repo.InsertThreadIfAbsent(&domain.GmailThread{
			ThreadID:   id,
			OwnerEmail: owner,
			Subject:    subject,
			Snippet:    detail.Snippet,
			Sender:     sender,
			Embedding:  domain.NewEmbedding(vec),
		})
		if err != nil {
			u.log.Error("thread insert failed", zap.String("thread", id), zap.Error(err))
			result.Skipped++
			continue
		}
		if inserted {
			result.Inserted++
			u.enqueueMirror(domain.KindThread, id, owner, notes)
		}
	}

	u.log.Info("gmail ingested", zap.String("owner", owner), zap.Int("inserted", result.Inserted), zap.Int("skipped", result.Skipped))
	return result, nil
}

func (u *ingestUsecase) IngestHubSpot(ctx context.Context, req Request) (*Result, error) {
	ts, owner, err := u.ownedSource(ctx, req, connDomain.ProviderHubSpot, nil)
	if err != nil {
		return nil, err
	}

	contacts, err := retry.Do(ctx, u.policy, func(ctx context.Context) ([]hubspot.Contact, error) {
		return u.contacts.ListContacts(ctx, ts)
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Source: "hubspot", Fetched: len(contacts)}
	for _, c := range contacts {
		if c.Email == "" {
			u.log.Debug("skipping contact without email", zap.String("contact", c.ID))
			result.Skipped++
			continue
		}

		notes := domain.ContactNotes(c.Name(), c.Email)
		vec, err := u.embed(ctx, notes)
		if err != nil {
			u.log.Warn("embedding failed, skipping contact", zap.String("contact", c.ID), zap.Error(err))
			result.Skipped++
			continue
		}

		inserted, err := u.repo.InsertContactIfAbsent(&domain.HubSpotContact{
			HubSpotID:  c.ID,
			OwnerEmail: owner,
			Name:       c.Name(),
			Email:      c.Email,
			Notes:      notes,
			Embedding:  domain.NewEmbedding(vec),
		})
		if err != nil {
			u.log.Error("contact insert failed", zap.String("contact", c.ID), zap.Error(err))
			result.Skipped++
			continue
		}
		if inserted {
			result.Inserted++
			u.enqueueMirror(domain.KindContact, c.ID, owner, notes)
		}
	}

	u.log.Info("hubspot ingested", zap.String("owner", owner), zap.Int("inserted", result.Inserted), zap.Int("skipped", result.Skipped))
	return result, nil
}

func (u *ingestUsecase) IngestCalendar(ctx context.Context, req Request) (*Result, error) {
	ts, owner, err := u.ownedSource(ctx, req, connDomain.ProviderGoogle, u.events.PrimaryEmail)
	if err != nil {
		return nil, err
	}

	max := req.Max
	if max <= 0 {
		max = DefaultEventCount
	}

	events, err := retry.Do(ctx, u.policy, func(ctx context.Context) ([]calendar.Event, error) {
		return u.events.ListUpcomingEvents(ctx, ts, max)
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Source: "calendar", Fetched: len(events)}
	for _, e := range events {
		notes := domain.EventNotes(e.Summary, e.Description)
		vec, err := u.embed(ctx, notes)
		if err != nil {
			u.log.Warn("embedding failed, skipping event", zap.String("event", e.ID), zap.Error(err))
			result.Skipped++
			continue
		}

		inserted, err := u.repo.InsertEventIfAbsent(&domain.CalendarEvent{
			EventID:     e.ID,
			OwnerEmail:  owner,
			Summary:     e.Summary,
			Description: e.Description,
			StartsAt:    e.StartsAt,
			Embedding:   domain.NewEmbedding(vec),
		})
		if err != nil {
			u.log.Error("event insert failed", zap.String("event", e.ID), zap.Error(err))
			result.Skipped++
			continue
		}
		if inserted {
			result.Inserted++
			u.enqueueMirror(domain.KindEvent, e.ID, owner, notes)
		}
	}

	u.log.Info("calendar ingested", zap.String("owner", owner), zap.Int("inserted", result.Inserted), zap.Int("skipped", result.Skipped))
	return result, nil
}

// IngestAll runs the three sources in parallel. A failing source is reported
// in its result and does not stop the others.
func (u *ingestUsecase) IngestAll(ctx context.Context, ownerEmail string) []Result {
	req := Request{Owner: ownerEmail}
	sources := []struct {
		name string
		run  func(context.Context, Request) (*Result, error)
	}{
		{"gmail", u.IngestGmail},
		{"hubspot", u.IngestHubSpot},
		{"calendar", u.IngestCalendar},
	}

	results := make([]Result, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			res, err := src.run(ctx, req)
			if err != nil {
				results[i] = Result{Source: src.name, Error: err.Error()}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (u *ingestUsecase) GetThread(ctx context.Context, req Request, threadID string) (*gmail.ThreadDetail, error) {
	ts, err := u.tokenSource(ctx, req, connDomain.ProviderGoogle)
	if err != nil {
		return nil, err
	}
	return retry.Do(ctx, u.policy, func(ctx context.Context) (*gmail.ThreadDetail, error) {
		return u.mail.GetThreadDetail(ctx, ts, threadID)
	})
}

// searchOwner normalizes the owner a search is scoped to. Every search reads
// one owner's records, from the vector index or from the database.
func searchOwner(ownerEmail string, k int) (string, int, error) {
	ownerEmail = strings.ToLower(strings.TrimSpace(ownerEmail))
	if ownerEmail == "" {
		return "", 0, ErrMissingOwner
	}
	if k <= 0 {
		k = DefaultSearchLimit
	}
	return ownerEmail, k, nil
}

func (u *ingestUsecase) SearchThreads(ctx context.Context, ownerEmail, query string, k int) ([]domain.GmailThread, error) {
	owner, k, err := searchOwner(ownerEmail, k)
	if err != nil {
		return nil, err
	}
	if u.searcher != nil {
		keys, err := u.searcher.SemanticSearch(ctx, owner, domain.KindThread, query, k)
		if err == nil {
			return u.repo.ThreadsByIDs(owner, keys)
		}
		u.log.Warn("mirror search failed, using database", zap.Error(err))
	}

	vec, err := u.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return u.repo.NearestThreads(owner, vec, k)
}

func (u *ingestUsecase) SearchContacts(ctx context.Context, ownerEmail, query string, k int) ([]domain.HubSpotContact, error) {
	owner, k, err := searchOwner(ownerEmail, k)
	if err != nil {
		return nil, err
	}
	if u.searcher != nil {
		keys, err := u.searcher.SemanticSearch(ctx, owner, domain.KindContact, query, k)
		if err == nil {
			return u.repo.ContactsByIDs(owner, keys)
		}
		u.log.Warn("mirror search failed, using database", zap.Error(err))
	}

	vec, err := u.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return u.repo.NearestContacts(owner, vec, k)
}

func (u *ingestUsecase) SearchEvents(ctx context.Context, ownerEmail, query string, k int) ([]domain.CalendarEvent, error) {
	owner, k, err := searchOwner(ownerEmail, k)
	if err != nil {
		return nil, err
	}
	if u.searcher != nil {
		keys, err := u.searcher.SemanticSearch(ctx, owner, domain.KindEvent, query, k)
		if err == nil {
			return u.repo.EventsByIDs(owner, keys)
		}
		u.log.Warn("mirror search failed, using database", zap.Error(err))
	}

	vec, err := u.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return u.repo.NearestEvents(owner, vec, k)
}
