package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	connDomain "advisor-backend/internal/connection/domain"
	"advisor-backend/internal/ingest/domain"
	"advisor-backend/internal/ingest/repository"
	"advisor-backend/pkg/calendar"
	"advisor-backend/pkg/gmail"
	"advisor-backend/pkg/hubspot"
	"advisor-backend/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) repository.RecordRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.GmailThread{}, &domain.HubSpotContact{}, &domain.CalendarEvent{}))
	return repository.NewRecordRepository(db)
}

type fakeTokens struct {
	connected map[string]bool
}

func (f *fakeTokens) TokenSource(ctx context.Context, owner string, provider connDomain.Provider) (oauth2.TokenSource, error) {
	if !f.connected[owner+"|"+string(provider)] {
		return nil, errors.New("not connected")
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: owner}), nil
}

type fakeMail struct {
	account string
	ids     []string
	details map[string]*gmail.ThreadDetail
	fails   map[string]int
	calls   map[string]int
	mu      sync.Mutex
}

func (f *fakeMail) ListRecentThreads(ctx context.Context, ts oauth2.TokenSource, max int64) ([]string, error) {
	return f.ids, nil
}

func (f *fakeMail) ProfileEmail(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	return f.account, nil
}

func (f *fakeMail) GetThreadDetail(ctx context.Context, ts oauth2.TokenSource, id string) (*gmail.ThreadDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if f.fails[id] > 0 {
		f.fails[id]--
		return nil, errors.New("temporarily unavailable")
	}
	d, ok := f.details[id]
	if !ok {
		return nil, errors.New("gone")
	}
	return d, nil
}

type fakeContacts struct {
	contacts []hubspot.Contact
	err      error
}

func (f *fakeContacts) ListContacts(ctx context.Context, ts oauth2.TokenSource) ([]hubspot.Contact, error) {
	return f.contacts, f.err
}

type fakeEvents struct {
	account string
	events  []calendar.Event
}

func (f *fakeEvents) PrimaryEmail(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	return f.account, nil
}

func (f *fakeEvents) ListUpcomingEvents(ctx context.Context, ts oauth2.TokenSource, max int64) ([]calendar.Event, error) {
	return f.events, nil
}

type fakeEmbedder struct {
	failOn string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failOn != "" && text == f.failOn {
		return nil, errors.New("embedding quota")
	}
	return []float32{float32(len(text)), 1}, nil
}

type recordingIndex struct {
	mu   sync.Mutex
	jobs []MirrorJob
}

func (r *recordingIndex) UpsertRecord(ctx context.Context, kind, key, owner, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, MirrorJob{Kind: kind, Key: key, Owner: owner, Text: text})
	return nil
}

func testPolicy() retry.Policy {
	return retry.Policy{Retries: 2, Timeout: time.Second, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

type fixture struct {
	uc       IngestUsecase
	repo     repository.RecordRepository
	mail     *fakeMail
	contacts *fakeContacts
	events   *fakeEvents
	embedder *fakeEmbedder
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		repo: newTestRepo(t),
		mail: &fakeMail{
			details: map[string]*gmail.ThreadDetail{},
			fails:   map[string]int{},
			calls:   map[string]int{},
		},
		contacts: &fakeContacts{},
		events:   &fakeEvents{},
		embedder: &fakeEmbedder{},
	}
	tokens := &fakeTokens{connected: map[string]bool{
		"o@x.com|google":  true,
		"o@x.com|hubspot": true,
	}}
	f.uc = NewIngestUsecase(f.repo, tokens, f.mail, f.contacts, f.events, f.embedder, 0, testPolicy(), zap.NewNop())
	return f
}

func threadDetail(id, subject, from string) *gmail.ThreadDetail {
	return &gmail.ThreadDetail{
		ID:      id,
		Subject: subject,
		From:    from,
		Snippet: "snippet " + id,
		Headers: map[string]string{"subject": subject, "from": from},
	}
}

func TestIngestGmailInsertsOnce(t *testing.T) {
	f := newFixture(t)
	f.mail.ids = []string{"t1", "t2"}
	f.mail.details["t1"] = threadDetail("t1", "Hello", `"Ada" <Ada@X.com>`)
	f.mail.details["t2"] = threadDetail("t2", "", "bob@x.com")

	res, err := f.uc.IngestGmail(context.Background(), Request{Owner: "o@x.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Inserted)

	t1, err := f.repo.FindThread("t1")
	require.NoError(t, err)
	assert.Equal(t, "ada@x.com", t1.Sender)
	assert.Equal(t, "o@x.com", t1.OwnerEmail)
	t2, err := f.repo.FindThread("t2")
	require.NoError(t, err)
	assert.Equal(t, "No Subject", t2.Subject)

	res, err = f.uc.IngestGmail(context.Background(), Request{Owner: "o@x.com"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
}

func TestIngestGmailRetriesDetailAndSkipsFailures(t *testing.T) {
	f := newFixture(t)
	f.mail.ids = []string{"flaky", "gone", "empty", "bad-embed"}
	f.mail.details["flaky"] = threadDetail("flaky", "Flaky", "a@x.com")
	f.mail.fails["flaky"] = 2
	f.mail.details["empty"] = &gmail.ThreadDetail{ID: "empty", Headers: map[string]string{}}
	f.mail.details["bad-embed"] = threadDetail("bad-embed", "Bad", "b@x.com")
	f.embedder.failOn = "Subject: Bad\nSnippet: snippet bad-embed"

	res, err := f.uc.IngestGmail(context.Background(), Request{Owner: "o@x.com"})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 3, f.mail.calls["flaky"])
	assert.Equal(t, 3, f.mail.calls["gone"])
}

func TestIngestRequiresOwnerOrToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.IngestGmail(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = f.uc.IngestHubSpot(context.Background(), Request{AccessToken: "raw"})
	assert.ErrorIs(t, err, ErrMissingOwner)
}

func TestIngestWithTokenStoresUnderTokenAccount(t *testing.T) {
	f := newFixture(t)
	f.mail.account = "Advisor@X.com"
	f.mail.ids = []string{"t1"}
	f.mail.details["t1"] = threadDetail("t1", "Hello", "a@x.com")

	res, err := f.uc.IngestGmail(context.Background(), Request{AccessToken: "raw"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	t1, err := f.repo.FindThread("t1")
	require.NoError(t, err)
	assert.Equal(t, "advisor@x.com", t1.OwnerEmail)

	recent, err := f.repo.RecentThreads("advisor@x.com", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "t1", recent[0].ThreadID)
}

func TestIngestWithTokenRejectsOtherOwner(t *testing.T) {
	f := newFixture(t)
	f.mail.account = "attacker@x.com"
	f.mail.ids = []string{"t1"}
	f.mail.details["t1"] = threadDetail("t1", "Hello", "a@x.com")
	f.events.account = "attacker@x.com"

	_, err := f.uc.IngestGmail(context.Background(), Request{Owner: "victim@x.com", AccessToken: "raw"})
	assert.ErrorIs(t, err, ErrOwnerMismatch)
	_, err = f.uc.IngestCalendar(context.Background(), Request{Owner: "victim@x.com", AccessToken: "raw"})
	assert.ErrorIs(t, err, ErrOwnerMismatch)

	t1, err := f.repo.FindThread("t1")
	require.NoError(t, err)
	assert.Nil(t, t1)
}

func TestIngestCalendarWithTokenUsesPrimaryCalendar(t *testing.T) {
	f := newFixture(t)
	f.events.account = "o@x.com"
	f.events.events = []calendar.Event{{ID: "e1", Summary: "Review"}}

	res, err := f.uc.IngestCalendar(context.Background(), Request{Owner: "O@x.com", AccessToken: "raw"})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	f.uc.SetMirror(nil, &fakeSearcher{keys: []string{"e1"}})
	events, err := f.uc.SearchEvents(context.Background(), "o@x.com", "review", 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestIngestHubSpotSkipsContactsWithoutEmail(t *testing.T) {
	f := newFixture(t)
	f.contacts.contacts = []hubspot.Contact{
		{ID: "1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@x.com"},
		{ID: "2", FirstName: "NoMail"},
	}

	res, err := f.uc.IngestHubSpot(context.Background(), Request{Owner: "o@x.com"})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	c, err := f.repo.FindContactByEmail("o@x.com", "ADA@x.com")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Name: Ada Lovelace, Email: ada@x.com", c.Notes)
}

func TestIngestAllReportsPerSource(t *testing.T) {
	f := newFixture(t)
	f.contacts.err = errors.New("hubspot down")
	start := time.Now()
	f.events.events = []calendar.Event{{ID: "e1", Summary: "Review", StartsAt: &start}}

	results := f.uc.IngestAll(context.Background(), "o@x.com")

	require.Len(t, results, 3)
	assert.Equal(t, "gmail", results[0].Source)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "hubspot", results[1].Source)
	assert.Contains(t, results[1].Error, "hubspot down")
	assert.Equal(t, "calendar", results[2].Source)
	assert.Equal(t, 1, results[2].Inserted)
}

func TestIngestMirrorsInsertedRecords(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	f := newFixture(t)
	index := &recordingIndex{}
	worker := NewMirrorWorker(index, 2, zap.NewNop())
	worker.Start()
	f.uc.SetMirror(worker, nil)

	f.mail.ids = []string{"t1"}
	f.mail.details["t1"] = threadDetail("t1", "Hello", "a@x.com")
	_, err := f.uc.IngestGmail(context.Background(), Request{Owner: "O@x.com"})
	require.NoError(t, err)
	_, err = f.uc.IngestGmail(context.Background(), Request{Owner: "O@x.com"})
	require.NoError(t, err)

	worker.Stop()

	require.Len(t, index.jobs, 1)
	assert.Equal(t, MirrorJob{Kind: domain.KindThread, Key: "t1", Owner: "o@x.com", Text: "Subject: Hello\nSnippet: snippet t1"}, index.jobs[0])
	assert.False(t, worker.Enqueue(MirrorJob{}), "stopped worker rejects jobs")
}

type fakeSearcher struct {
	keys []string
	err  error
}

func (f *fakeSearcher) SemanticSearch(ctx context.Context, owner, kind, query string, limit int) ([]string, error) {
	return f.keys, f.err
}

func TestSearchUsesMirrorForOwnerScopedQueries(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a", "b"} {
		_, err := f.repo.InsertThreadIfAbsent(&domain.GmailThread{ThreadID: id, OwnerEmail: "o@x.com", Subject: id})
		require.NoError(t, err)
	}
	f.uc.SetMirror(nil, &fakeSearcher{keys: []string{"b", "a"}})

	threads, err := f.uc.SearchThreads(context.Background(), "o@x.com", "anything", 5)

	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "b", threads[0].ThreadID)
}
