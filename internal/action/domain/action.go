package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Tool names accepted by the tool-call endpoint
const (
	ToolSendEmail     = "send_email"
	ToolCreateEvent   = "create_event"
	ToolCreateContact = "create_contact"
)

var ErrUnknownTool = errors.New("unknown tool")

// Action is one of SendMessage, CreateEvent or CreateContact. The set is
// closed: only this package can add variants.
type Action interface {
	Name() string
	Validate() error
	isAction()
}

type SendMessage struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type CreateEvent struct {
	Title     string   `json:"title"`
	Time      string   `json:"time"`
	Attendees []string `json:"attendees"`
}

type CreateContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (SendMessage) Name() string   { return ToolSendEmail }
func (CreateEvent) Name() string   { return ToolCreateEvent }
func (CreateContact) Name() string { return ToolCreateContact }

func (SendMessage) isAction()   {}
func (CreateEvent) isAction()   {}
func (CreateContact) isAction() {}

func (a SendMessage) Validate() error {
	if err := validEmail("recipient", a.Recipient); err != nil {
		return err
	}
	if strings.TrimSpace(a.Subject) == "" {
		return errors.New("subject is required")
	}
	return nil
}

func (a CreateEvent) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return errors.New("title is required")
	}
	if _, err := a.StartTime(); err != nil {
		return err
	}
	for _, attendee := range a.Attendees {
		if err := validEmail("attendee", attendee); err != nil {
			return err
		}
	}
	return nil
}

// eventTimeLayouts are tried in order when parsing CreateEvent.Time
var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func (a CreateEvent) StartTime() (time.Time, error) {
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(a.Time)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("time %q is not a valid timestamp", a.Time)
}

func (a CreateContact) Validate() error {
	return validEmail("email", a.Email)
}

func validEmail(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, err := mail.ParseAddress(value); err != nil {
		return fmt.Errorf("%s %q is not a valid address", field, value)
	}
	return nil
}

// Result is the outcome of one dispatch. Ref identifies what was created
// upstream, when anything was.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

func Succeeded(ref, format string, args ...interface{}) Result {
	return Result{OK: true, Message: fmt.Sprintf(format, args...), Ref: ref}
}

func Failed(format string, args ...interface{}) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}
