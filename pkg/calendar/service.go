package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Event is a calendar entry reduced to what gets ingested.
type Event struct {
	ID          string
	Summary     string
	Description string
	StartsAt    *time.Time
}

type Service struct {
	endpoint string
}

// NewService creates a Calendar client factory. endpoint overrides the API
// base URL and is only set in tests.
func NewService(endpoint string) *Service {
	return &Service{endpoint: endpoint}
}

func (s *Service) getCalendarService(ctx context.Context, ts oauth2.TokenSource) (*calendar.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}

	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	return srv, nil
}

// PrimaryEmail returns the id of the primary calendar, which is the account
// email ts is authorized for.
func (s *Service) PrimaryEmail(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	srv, err := s.getCalendarService(ctx, ts)
	if err != nil {
		return "", err
	}

	entry, err := srv.CalendarList.Get("primary").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to get primary calendar: %w", err)
	}
	return entry.Id, nil
}

// ListUpcomingEvents returns up to max events of the primary calendar starting
// from now, ordered by start time.
func (s *Service) ListUpcomingEvents(ctx context.Context, ts oauth2.TokenSource, max int64) ([]Event, error) {
	srv, err := s.getCalendarService(ctx, ts)
	if err != nil {
		return nil, err
	}

	if max <= 0 {
		max = 10
	}

	resp, err := srv.Events.List("primary").
		TimeMin(time.Now().Format(time.RFC3339)).
		MaxResults(max).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list events: %w", err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, Event{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			StartsAt:    eventStart(item.Start),
		})
	}
	return events, nil
}

// eventStart accepts both timed events and all-day events.
func eventStart(start *calendar.EventDateTime) *time.Time {
	if start == nil {
		return nil
	}
	if start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, start.DateTime); err == nil {
			return &t
		}
	}
	if start.Date != "" {
		if t, err := time.Parse("2006-01-02", start.Date); err == nil {
			return &t
		}
	}
	return nil
}

// CreateEvent inserts a one hour event starting at startsAt and invites the
// attendees. Returns the new event id.
func (s *Service) CreateEvent(ctx context.Context, ts oauth2.TokenSource, title string, startsAt time.Time, attendees []string) (string, error) {
	srv, err := s.getCalendarService(ctx, ts)
	if err != nil {
		return "", err
	}

	event := &calendar.Event{
		Summary: title,
		Start:   &calendar.EventDateTime{DateTime: startsAt.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: startsAt.Add(time.Hour).Format(time.RFC3339)},
	}
	for _, a := range attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: a})
	}

	created, err := srv.Events.Insert("primary", event).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create event: %w", err)
	}
	return created.Id, nil
}
