package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	actionDomain "advisor-backend/internal/action/domain"
	connDomain "advisor-backend/internal/connection/domain"
	ingestDomain "advisor-backend/internal/ingest/domain"
	ingestRepo "advisor-backend/internal/ingest/repository"
	"advisor-backend/internal/instruction/domain"
	"advisor-backend/internal/instruction/repository"
	"advisor-backend/pkg/gmail"
	"advisor-backend/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&domain.Instruction{}, &domain.Dispatch{},
		&ingestDomain.GmailThread{}, &ingestDomain.HubSpotContact{},
	))
	return db
}

type fakeTokens struct {
	missing map[string]bool
}

func (f *fakeTokens) TokenSource(ctx context.Context, owner string, provider connDomain.Provider) (oauth2.TokenSource, error) {
	if f.missing[owner] {
		return nil, errors.New("not connected")
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: owner}), nil
}

type fakeReader struct {
	mu      sync.Mutex
	from    map[string]string
	fails   map[string]int
	panicOn string
	calls   map[string]int
}

func (f *fakeReader) GetThreadDetail(ctx context.Context, ts oauth2.TokenSource, id string) (*gmail.ThreadDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if id == f.panicOn {
		panic("malformed payload")
	}
	if f.fails[id] > 0 {
		f.fails[id]--
		return nil, errors.New("503 backend error")
	}
	from, ok := f.from[id]
	if !ok {
		return &gmail.ThreadDetail{ID: id}, nil
	}
	return &gmail.ThreadDetail{ID: id, From: from, Headers: map[string]string{"from": from}}, nil
}

// recordingDispatcher stores created contacts the way the real dispatcher does
type recordingDispatcher struct {
	records ingestRepo.RecordRepository
	calls   []actionDomain.Action
	failFor map[string]bool
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, owner string, action actionDomain.Action) actionDomain.Result {
	d.calls = append(d.calls, action)
	c := action.(actionDomain.CreateContact)
	if d.failFor[c.Email] {
		return actionDomain.Failed("create_contact: store: disk full")
	}
	if _, err := d.records.InsertContactIfAbsent(&ingestDomain.HubSpotContact{
		HubSpotID: ingestDomain.LocalContactKey(c.Email), OwnerEmail: owner, Name: c.Name, Email: c.Email,
	}); err != nil {
		return actionDomain.Failed("create_contact: store: %v", err)
	}
	return actionDomain.Succeeded("", "Contact created")
}

type recordingAlerter struct {
	owners []string
}

func (a *recordingAlerter) NotifyOwner(ctx context.Context, owner, title, body string, data map[string]string) error {
	a.owners = append(a.owners, owner)
	return nil
}

type checkerFixture struct {
	checker      Checker
	instructions repository.InstructionRepository
	records      ingestRepo.RecordRepository
	tokens       *fakeTokens
	reader       *fakeReader
	dispatcher   *recordingDispatcher
	now          time.Time
}

func newCheckerFixture(t *testing.T) *checkerFixture {
	db := newTestDB(t)
	f := &checkerFixture{
		instructions: repository.NewInstructionRepository(db),
		records:      ingestRepo.NewRecordRepository(db),
		tokens:       &fakeTokens{missing: map[string]bool{}},
		reader:       &fakeReader{from: map[string]string{}, fails: map[string]int{}, calls: map[string]int{}},
		now:          time.Now(),
	}
	f.dispatcher = &recordingDispatcher{records: f.records, failFor: map[string]bool{}}
	policy := retry.Policy{Retries: 2, Timeout: time.Second, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	f.checker = NewChecker(f.instructions, f.records, f.tokens, f.reader, f.dispatcher, time.Hour, policy, zap.NewNop())
	return f
}

func (f *checkerFixture) instruction(t *testing.T, owner, text string) *domain.Instruction {
	in := &domain.Instruction{OwnerEmail: owner, Text: text}
	require.NoError(t, f.instructions.Create(in))
	return in
}

func (f *checkerFixture) message(t *testing.T, owner, id, from string, age time.Duration) {
	_, err := f.records.InsertThreadIfAbsent(&ingestDomain.GmailThread{
		ThreadID: id, OwnerEmail: owner, Subject: id, CreatedAt: f.now.Add(-age),
	})
	require.NoError(t, err)
	f.reader.from[id] = from
}

func linesWith(logs []string, marker string) []string {
	var out []string
	for _, l := range logs {
		if strings.HasPrefix(l, marker) {
			out = append(out, l)
		}
	}
	return out
}

const alertInstruction = "Alert me if someone emails who is NOT in HubSpot"

func TestPassCreatesMissingContactOnce(t *testing.T) {
	f := newCheckerFixture(t)
	in := f.instruction(t, "o@x.com", alertInstruction)
	f.message(t, "o@x.com", "t1", `"Jane Doe" <jane@x.com>`, time.Minute)

	logs := f.checker.RunPass(context.Background())

	require.Len(t, logs, 1)
	assert.Len(t, linesWith(logs, MarkMatched), 1)
	require.Len(t, f.dispatcher.calls, 1)
	assert.Equal(t, actionDomain.CreateContact{Name: "Jane Doe", Email: "jane@x.com"}, f.dispatcher.calls[0])

	marker, err := f.instructions.FindDispatch(in.ID, "t1")
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, domain.DispatchDispatched, marker.Status)

	logs = f.checker.RunPass(context.Background())

	assert.Len(t, f.dispatcher.calls, 1, "second pass must not dispatch again")
	assert.Len(t, linesWith(logs, MarkPresent), 1)
}

func TestPassNeverDispatchesForExistingContact(t *testing.T) {
	f := newCheckerFixture(t)
	f.instruction(t, "o@x.com", alertInstruction)
	f.instruction(t, "o@x.com", "Create a contact for anyone not in hubspot")
	f.instruction(t, "o@x.com", "Reply to my accountant")
	_, err := f.records.InsertContactIfAbsent(&ingestDomain.HubSpotContact{HubSpotID: "1", OwnerEmail: "o@x.com", Email: "Jane@X.com"})
	require.NoError(t, err)
	f.message(t, "o@x.com", "t1", `"Jane Doe" <jane@x.com>`, time.Minute)

	logs := f.checker.RunPass(context.Background())

	assert.Empty(t, f.dispatcher.calls)
	assert.Len(t, linesWith(logs, MarkPresent), 3)
}

func TestPassIgnoresOtherOwnersContacts(t *testing.T) {
	f := newCheckerFixture(t)
	f.instruction(t, "o@x.com", alertInstruction)
	_, err := f.records.InsertContactIfAbsent(&ingestDomain.HubSpotContact{HubSpotID: "1", OwnerEmail: "p@x.com", Email: "jane@x.com"})
	require.NoError(t, err)
	f.message(t, "o@x.com", "t1", `"Jane Doe" <jane@x.com>`, time.Minute)

	logs := f.checker.RunPass(context.Background())

	assert.Len(t, linesWith(logs, MarkMatched), 1)
	require.Len(t, f.dispatcher.calls, 1)
	assert.Equal(t, actionDomain.CreateContact{Name: "Jane Doe", Email: "jane@x.com"}, f.dispatcher.calls[0])
}

func TestPassSkipsUnparseableSender(t *testing.T) {
	f := newCheckerFixture(t)
	f.instruction(t, "o@x.com", alertInstruction)
	f.message(t, "o@x.com", "t1", "Mailer Daemon", time.Minute)
	f.message(t, "o@x.com", "t2", "", time.Minute)

	var logs []string
	require.NotPanics(t, func() { logs = f.checker.RunPass(context.Background()) })

	assert.Len(t, linesWith(logs, MarkSkipped), 2)
	assert.Empty(t, f.dispatcher.calls)
}

func TestPassDoesNotActWithoutMatchingPhrase(t *testing.T) {
	f := newCheckerFixture(t)
	f.instruction(t, "o@x.com", "Summarise my inbox every morning")
	f.message(t, "o@x.com", "t1", "jane@x.com", time.Minute)

	logs := f.checker.RunPass(context.Background())

	assert.Len(t, linesWith(logs, MarkNoMatch), 1)
	assert.Empty(t, f.dispatcher.calls)
}

func TestPassIgnoresMessagesOutsideWindow(t *testing.T) {
	f := newCheckerFixture(t)
	f.instruction(t, "o@x.com", alertInstruction)
	f.message(t, "o@x.com", "old", "jane@x.com", 2*time.Hour)
	f.message(t, "p@x.com", "foreign", "bob@x.com", time.Minute)

	logs := f.checker.RunPass(context.Background())

	assert.Empty(t, logs)
	assert.Empty(t, f.reader.calls)
}

func TestPassReturnsSingleLineWhenInstructionsCannotLoad(t *testing.T) {
	f := newCheckerFixture(t)
	c := NewChecker(failingInstructions{}, f.records, f.tokens, f.reader, f.dispatcher, time.Hour, retry.Policy{}, zap.NewNop())

	logs := c.RunPass(context.Background())

	require.Len(t, logs, 1)
	assert.True(t, strings.HasPrefix(logs[0], MarkError))
	assert.Contains(t, logs[0], "connection refused")
}

type failingInstructions struct{}

func (failingInstructions) ListAll() ([]domain.Instruction, error) {
	return nil, errors.New("connection refused")
}

func (failingInstructions) ClaimDispatch(string, string, string) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingInstructions) FinishDispatch(string, string, domain.DispatchStatus, string) error {
	return errors.New("connection refused")
}

func TestPassIsolatesFailures(t *testing.T) {
	f := newCheckerFixture(t)
	f.instruction(t, "broken@x.com", alertInstruction)
	f.instruction(t, "o@x.com", alertInstruction)
	f.tokens.missing["broken@x.com"] = true
	f.message(t, "broken@x.com", "b1", "x@x.com", time.Minute)
	f.message(t, "o@x.com", "boom", "a@x.com", 3*time.Minute)
	f.message(t, "o@x.com", "down", "b@x.com", 2*time.Minute)
	f.message(t, "o@x.com", "ok", "c@x.com", time.Minute)
	f.reader.panicOn = "boom"
	f.reader.fails["down"] = 10

	logs := f.checker.RunPass(context.Background())

	assert.Len(t, linesWith(logs, MarkError), 3)
	assert.Len(t, linesWith(logs, MarkMatched), 1)
	assert.Equal(t, 3, f.reader.calls["down"], "detail fetch is retried twice")
	require.Len(t, f.dispatcher.calls, 1)
	assert.Equal(t, "c@x.com", f.dispatcher.calls[0].(actionDomain.CreateContact).Email)
}

func TestStoreFailureDoesNotBlockLaterInstruction(t *testing.T) {
	f := newCheckerFixture(t)
	first := f.instruction(t, "a@x.com", alertInstruction)
	f.instruction(t, "b@x.com", alertInstruction)
	f.message(t, "a@x.com", "t1", "jane@x.com", time.Minute)
	f.message(t, "b@x.com", "t2", "john@x.com", time.Minute)
	f.dispatcher.failFor["jane@x.com"] = true

	logs := f.checker.RunPass(context.Background())

	assert.Len(t, linesWith(logs, MarkError), 1)
	assert.Len(t, linesWith(logs, MarkMatched), 1)
	john, err := f.records.FindContactByEmail("b@x.com", "john@x.com")
	require.NoError(t, err)
	assert.NotNil(t, john)

	marker, err := f.instructions.FindDispatch(first.ID, "t1")
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, domain.DispatchFailed, marker.Status)

	logs = f.checker.RunPass(context.Background())
	assert.Len(t, linesWith(logs, MarkAlreadyDispatched), 1, "a failed dispatch is not retried")
}

func TestPassAlertsOwnerOnCreatedContact(t *testing.T) {
	f := newCheckerFixture(t)
	alerter := &recordingAlerter{}
	f.checker.SetAlerter(alerter)
	f.instruction(t, "o@x.com", alertInstruction)
	f.message(t, "o@x.com", "t1", "jane@x.com", time.Minute)

	f.checker.RunPass(context.Background())

	assert.Equal(t, []string{"o@x.com"}, alerter.owners)
}

type blockingInstructions struct {
	failingInstructions
	entered chan struct{}
	release chan struct{}
}

func (b blockingInstructions) ListAll() ([]domain.Instruction, error) {
	close(b.entered)
	<-b.release
	return nil, nil
}

func TestTryRunPassSkipsWhenBusy(t *testing.T) {
	f := newCheckerFixture(t)
	src := blockingInstructions{entered: make(chan struct{}), release: make(chan struct{})}
	c := NewChecker(src, f.records, f.tokens, f.reader, f.dispatcher, time.Hour, retry.Policy{}, zap.NewNop())

	done := make(chan bool)
	go func() {
		_, ran := c.TryRunPass(context.Background())
		done <- ran
	}()
	<-src.entered

	logs, ran := c.TryRunPass(context.Background())
	assert.False(t, ran)
	assert.NotNil(t, logs)

	close(src.release)
	assert.True(t, <-done)
}
