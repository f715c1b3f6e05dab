package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"advisor-backend/internal/action/domain"
	connDomain "advisor-backend/internal/connection/domain"
	connUsecase "advisor-backend/internal/connection/usecase"
	ingestDomain "advisor-backend/internal/ingest/domain"
	"advisor-backend/pkg/ai"
	"advisor-backend/pkg/hubspot"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type TokenSources interface {
	TokenSource(ctx context.Context, ownerEmail string, provider connDomain.Provider) (oauth2.TokenSource, error)
}

type MailSender interface {
	SendEmail(ctx context.Context, ts oauth2.TokenSource, to, subject, body string) (string, error)
}

type EventCreator interface {
	CreateEvent(ctx context.Context, ts oauth2.TokenSource, title string, startsAt time.Time, attendees []string) (string, error)
}

type ContactCreator interface {
	CreateContact(ctx context.Context, ts oauth2.TokenSource, name, email string) (*hubspot.Contact, error)
}

// ContactStore is the local side of contact creation
type ContactStore interface {
	InsertContactIfAbsent(contact *ingestDomain.HubSpotContact) (bool, error)
}

// Dispatcher executes actions on behalf of an owner
type Dispatcher interface {
	Dispatch(ctx context.Context, ownerEmail string, action domain.Action) domain.Result
}

type dispatcher struct {
	tokens   TokenSources
	mail     MailSender
	events   EventCreator
	crm      ContactCreator
	contacts ContactStore
	embedder ai.Embedder
	log      *zap.Logger
}

func NewDispatcher(
	tokens TokenSources,
	mail MailSender,
	events EventCreator,
	crm ContactCreator,
	contacts ContactStore,
	embedder ai.Embedder,
	log *zap.Logger,
) Dispatcher {
	return &dispatcher{
		tokens:   tokens,
		mail:     mail,
		events:   events,
		crm:      crm,
		contacts: contacts,
		embedder: embedder,
		log:      log.Named("dispatcher"),
	}
}

// Dispatch never panics; every failure is reported in the Result.
func (d *dispatcher) Dispatch(ctx context.Context, ownerEmail string, action domain.Action) (result domain.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch panicked", zap.Any("panic", r))
			result = domain.Failed("%s panicked: %v", actionName(action), r)
		}
	}()

	if action == nil {
		return domain.Failed("%s", domain.ErrUnknownTool)
	}
	if err := action.Validate(); err != nil {
		return domain.Failed("invalid %s arguments: %v", action.Name(), err)
	}

	switch a := action.(type) {
	case domain.SendMessage:
		result = d.sendMessage(ctx, ownerEmail, a)
	case domain.CreateEvent:
		result = d.createEvent(ctx, ownerEmail, a)
	case domain.CreateContact:
		result = d.createContact(ctx, ownerEmail, a)
	default:
		result = domain.Failed("%s", domain.ErrUnknownTool)
	}

	d.log.Info("action dispatched",
		zap.String("owner", ownerEmail),
		zap.String("action", action.Name()),
		zap.Bool("ok", result.OK),
		zap.String("message", result.Message),
	)
	return result
}

func actionName(a domain.Action) string {
	if a == nil {
		return "action"
	}
	return a.Name()
}

func (d *dispatcher) sendMessage(ctx context.Context, owner string, a domain.SendMessage) domain.Result {
	ts, err := d.tokens.TokenSource(ctx, owner, connDomain.ProviderGoogle)
	if err != nil {
		return domain.Failed("send_email: %v", err)
	}
	id, err := d.mail.SendEmail(ctx, ts, a.Recipient, a.Subject, a.Body)
	if err != nil {
		return domain.Failed("send_email: %v", err)
	}
	return domain.Succeeded(id, "Email sent to %s: %s", a.Recipient, a.Subject)
}

func (d *dispatcher) createEvent(ctx context.Context, owner string, a domain.CreateEvent) domain.Result {
	startsAt, err := a.StartTime()
	if err != nil {
		return domain.Failed("create_event: %v", err)
	}
	ts, err := d.tokens.TokenSource(ctx, owner, connDomain.ProviderGoogle)
	if err != nil {
		return domain.Failed("create_event: %v", err)
	}
	id, err := d.events.CreateEvent(ctx, ts, a.Title, startsAt, a.Attendees)
	if err != nil {
		return domain.Failed("create_event: %v", err)
	}
	return domain.Succeeded(id, "Event created: %s at %s with %s", a.Title, startsAt.Format(time.RFC3339), strings.Join(a.Attendees, ", "))
}

// createContact creates the contact in HubSpot when the owner is connected,
// then records it locally. Without a HubSpot connection the contact is only
// recorded locally under a local key.
func (d *dispatcher) createContact(ctx context.Context, owner string, a domain.CreateContact) domain.Result {
	email := strings.ToLower(strings.TrimSpace(a.Email))
	key := ingestDomain.LocalContactKey(email)

	ts, err := d.tokens.TokenSource(ctx, owner, connDomain.ProviderHubSpot)
	switch {
	case err == nil:
		created, err := d.crm.CreateContact(ctx, ts, a.Name, email)
		if err != nil {
			return domain.Failed("create_contact: %v", err)
		}
		key = created.ID
	case errors.Is(err, connUsecase.ErrNotConnected):
		d.log.Info("owner has no HubSpot connection, recording contact locally", zap.String("owner", owner))
	default:
		return domain.Failed("create_contact: %v", err)
	}

	notes := ingestDomain.ContactNotes(a.Name, email)
	var vec []float32
	if d.embedder != nil {
		if vec, err = d.embedder.Embed(ctx, notes); err != nil {
			d.log.Warn("contact embedding failed, storing without vector", zap.Error(err))
			vec = nil
		}
	}

	if _, err := d.contacts.InsertContactIfAbsent(&ingestDomain.HubSpotContact{
		HubSpotID:  key,
		OwnerEmail: strings.ToLower(owner),
		Name:       a.Name,
		Email:      email,
		Notes:      notes,
		Embedding:  ingestDomain.NewEmbedding(vec),
	}); err != nil {
		return domain.Failed("create_contact: store: %v", err)
	}

	return domain.Succeeded(key, "Contact created: %s (%s)", a.Name, email)
}

// Decode builds the action named by tool from its JSON arguments. Unknown
// fields are rejected so a misspelled argument is reported instead of ignored.
func Decode(tool string, args json.RawMessage) (domain.Action, error) {
	switch tool {
	case domain.ToolSendEmail:
		return decodeInto[domain.SendMessage](args)
	case domain.ToolCreateEvent:
		return decodeInto[domain.CreateEvent](args)
	case domain.ToolCreateContact:
		return decodeInto[domain.CreateContact](args)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTool, tool)
	}
}

func decodeInto[T domain.Action](args json.RawMessage) (domain.Action, error) {
	var v T
	if len(args) == 0 {
		return nil, errors.New("arguments are required")
	}
	dec := json.NewDecoder(strings.NewReader(string(args)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return v, nil
}
