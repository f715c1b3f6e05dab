package usecase

import (
	"context"
	"fmt"
	"time"

	actionDomain "advisor-backend/internal/action/domain"
	connDomain "advisor-backend/internal/connection/domain"
	ingestDomain "advisor-backend/internal/ingest/domain"
	"advisor-backend/internal/instruction/domain"
	"advisor-backend/pkg/gmail"
	"advisor-backend/pkg/mailaddr"
	"advisor-backend/pkg/retry"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"
)

// Log line markers, one per (instruction, message) pair
const (
	MarkSkipped           = "[skipped]"
	MarkMatched           = "[matched]"
	MarkPresent           = "[present]"
	MarkNoMatch           = "[no-match]"
	MarkAlreadyDispatched = "[already-dispatched]"
	MarkError             = "[error]"
)

type InstructionSource interface {
	ListAll() ([]domain.Instruction, error)
	ClaimDispatch(instructionID, messageID, action string) (bool, error)
	FinishDispatch(instructionID, messageID string, status domain.DispatchStatus, detail string) error
}

type MessageSource interface {
	RecentThreads(ownerEmail string, since time.Time) ([]ingestDomain.GmailThread, error)
	FindContactByEmail(ownerEmail, email string) (*ingestDomain.HubSpotContact, error)
}

type TokenSources interface {
	TokenSource(ctx context.Context, ownerEmail string, provider connDomain.Provider) (oauth2.TokenSource, error)
}

type ThreadReader interface {
	GetThreadDetail(ctx context.Context, ts oauth2.TokenSource, threadID string) (*gmail.ThreadDetail, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ownerEmail string, action actionDomain.Action) actionDomain.Result
}

// Alerter tells an owner that the loop acted on their behalf
type Alerter interface {
	NotifyOwner(ctx context.Context, ownerEmail, title, body string, data map[string]string) error
}

// Checker runs the instruction-matching pass
type Checker interface {
	// RunPass evaluates every instruction against recently ingested mail.
	// It always returns the log lines and never panics.
	RunPass(ctx context.Context) []string
	// TryRunPass is RunPass guarded so at most one pass runs at a time.
	// ran is false when another pass was already in progress.
	TryRunPass(ctx context.Context) (logs []string, ran bool)
	SetAlerter(alerter Alerter)
}

type checker struct {
	instructions InstructionSource
	messages     MessageSource
	tokens       TokenSources
	mail         ThreadReader
	dispatcher   Dispatcher
	alerter      Alerter
	window       time.Duration
	policy       retry.Policy
	busy         *semaphore.Weighted
	now          func() time.Time
	log          *zap.Logger
}

func NewChecker(
	instructions InstructionSource,
	messages MessageSource,
	tokens TokenSources,
	mail ThreadReader,
	dispatcher Dispatcher,
	window time.Duration,
	policy retry.Policy,
	log *zap.Logger,
) Checker {
	if window <= 0 {
		window = time.Hour
	}
	return &checker{
		instructions: instructions,
		messages:     messages,
		tokens:       tokens,
		mail:         mail,
		dispatcher:   dispatcher,
		window:       window,
		policy:       policy,
		busy:         semaphore.NewWeighted(1),
		now:          time.Now,
		log:          log.Named("instruction-check"),
	}
}

func (c *checker) SetAlerter(alerter Alerter) {
	c.alerter = alerter
}

func (c *checker) TryRunPass(ctx context.Context) ([]string, bool) {
	if !c.busy.TryAcquire(1) {
		c.log.Info("previous pass still running, skipping")
		return []string{}, false
	}
	defer c.busy.Release(1)
	return c.RunPass(ctx), true
}

func (c *checker) RunPass(ctx context.Context) (logs []string) {
	logs = []string{}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("pass panicked", zap.Any("panic", r))
			logs = append(logs, fmt.Sprintf("%s pass aborted: %v", MarkError, r))
		}
	}()

	instructions, err := c.instructions.ListAll()
	if err != nil {
		c.log.Error("failed to load instructions", zap.Error(err))
		return []string{fmt.Sprintf("%s failed to load instructions: %v", MarkError, err)}
	}

	p := &pass{checker: c, since: c.now().Add(-c.window), details: map[string]*gmail.ThreadDetail{}}
	for _, instruction := range instructions {
		logs = append(logs, p.checkInstruction(ctx, instruction)...)
	}

	c.log.Info("pass finished", zap.Int("instructions", len(instructions)), zap.Int("lines", len(logs)))
	return logs
}

// pass holds what is shared between instructions during one run
type pass struct {
	*checker
	since   time.Time
	details map[string]*gmail.ThreadDetail
}

func (p *pass) checkInstruction(ctx context.Context, instruction domain.Instruction) (logs []string) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("instruction panicked", zap.String("instruction_id", instruction.ID), zap.Any("panic", r))
			logs = append(logs, fmt.Sprintf("%s instruction %s: %v", MarkError, instruction.ID, r))
		}
	}()

	threads, err := p.messages.RecentThreads(instruction.OwnerEmail, p.since)
	if err != nil {
		return []string{fmt.Sprintf("%s instruction %s: failed to load recent messages: %v", MarkError, instruction.ID, err)}
	}
	if len(threads) == 0 {
		return nil
	}

	ts, err := p.tokens.TokenSource(ctx, instruction.OwnerEmail, connDomain.ProviderGoogle)
	if err != nil {
		return []string{fmt.Sprintf("%s instruction %s: no mail access for %s: %v", MarkError, instruction.ID, instruction.OwnerEmail, err)}
	}

	for _, thread := range threads {
		logs = append(logs, p.checkMessage(ctx, ts, instruction, thread.ThreadID))
	}
	return logs
}

func (p *pass) checkMessage(ctx context.Context, ts oauth2.TokenSource, instruction domain.Instruction, threadID string) (line string) {
	prefix := fmt.Sprintf("instruction %s, thread %s", instruction.ID, threadID)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("message panicked", zap.String("thread_id", threadID), zap.Any("panic", r))
			line = fmt.Sprintf("%s %s: %v", MarkError, prefix, r)
		}
	}()

	detail, err := p.threadDetail(ctx, ts, instruction.OwnerEmail, threadID)
	if err != nil {
		return fmt.Sprintf("%s %s: failed to fetch message: %v", MarkError, prefix, err)
	}
	if !detail.HasMessages() {
		return fmt.Sprintf("%s %s: thread has no messages", MarkSkipped, prefix)
	}

	sender, ok := mailaddr.ParseFrom(detail.From)
	if !ok {
		p.log.Debug("unparseable sender", zap.String("thread_id", threadID), zap.String("from", detail.From))
		return fmt.Sprintf("%s %s: no sender address in %q", MarkSkipped, prefix, detail.From)
	}

	existing, err := p.messages.FindContactByEmail(instruction.OwnerEmail, sender.Email)
	if err != nil {
		return fmt.Sprintf("%s %s: contact lookup failed: %v", MarkError, prefix, err)
	}
	if existing != nil {
		return fmt.Sprintf("%s %s: %s is already a contact", MarkPresent, prefix, sender.Email)
	}

	if !instruction.WantsMissingContactCreated() {
		return fmt.Sprintf("%s %s: instruction does not apply to %s", MarkNoMatch, prefix, sender.Email)
	}

	action := actionDomain.CreateContact{Name: sender.Name, Email: sender.Email}
	claimed, err := p.instructions.ClaimDispatch(instruction.ID, threadID, action.Name())
	if err != nil {
		return fmt.Sprintf("%s %s: failed to record dispatch: %v", MarkError, prefix, err)
	}
	if !claimed {
		return fmt.Sprintf("%s %s: %s was already handled", MarkAlreadyDispatched, prefix, sender.Email)
	}

	result := p.dispatch(ctx, instruction.OwnerEmail, action)

	status := domain.DispatchDispatched
	if !result.OK {
		status = domain.DispatchFailed
	}
	if err := p.instructions.FinishDispatch(instruction.ID, threadID, status, result.Message); err != nil {
		p.log.Warn("failed to update dispatch marker", zap.String("thread_id", threadID), zap.Error(err))
	}

	if !result.OK {
		return fmt.Sprintf("%s %s: create_contact for %s failed: %s", MarkError, prefix, sender.Email, result.Message)
	}

	p.alert(ctx, instruction, sender)
	return fmt.Sprintf("%s %s: created contact %s <%s>", MarkMatched, prefix, sender.Name, sender.Email)
}

// threadDetail fetches a thread once per owner per pass
func (p *pass) threadDetail(ctx context.Context, ts oauth2.TokenSource, owner, threadID string) (*gmail.ThreadDetail, error) {
	key := owner + "|" + threadID
	if detail, ok := p.details[key]; ok {
		return detail, nil
	}
	detail, err := retry.Do(ctx, p.policy, func(ctx context.Context) (*gmail.ThreadDetail, error) {
		return p.mail.GetThreadDetail(ctx, ts, threadID)
	})
	if err != nil {
		return nil, err
	}
	p.details[key] = detail
	return detail, nil
}

// dispatch is bounded by the upstream timeout and never retried
func (p *pass) dispatch(ctx context.Context, owner string, action actionDomain.Action) actionDomain.Result {
	if p.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.policy.Timeout)
		defer cancel()
	}
	return p.dispatcher.Dispatch(ctx, owner, action)
}

func (p *pass) alert(ctx context.Context, instruction domain.Instruction, sender mailaddr.Address) {
	if p.alerter == nil {
		return
	}
	err := p.alerter.NotifyOwner(ctx, instruction.OwnerEmail,
		"New contact added",
		fmt.Sprintf("%s <%s> emailed you and was added to your contacts", sender.Name, sender.Email),
		map[string]string{
			"type":           "contact_created",
			"instruction_id": instruction.ID,
			"email":          sender.Email,
		},
	)
	if err != nil {
		p.log.Warn("failed to alert owner", zap.String("owner", instruction.OwnerEmail), zap.Error(err))
	}
}
