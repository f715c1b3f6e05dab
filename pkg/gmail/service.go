package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ThreadDetail is the part of a Gmail thread the advisor cares about: the
// headers of its first message and the thread snippet.
type ThreadDetail struct {
	ID      string
	Subject string
	From    string
	Snippet string
	Headers map[string]string
}

type Service struct {
	endpoint string
}

// NewService creates a Gmail client factory. endpoint overrides the API base
// URL and is only set in tests.
func NewService(endpoint string) *Service {
	return &Service{endpoint: endpoint}
}

// GetGmailService creates a Gmail service authorized by ts
func (s *Service) GetGmailService(ctx context.Context, ts oauth2.TokenSource) (*gmail.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}

	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// ProfileEmail returns the address of the mailbox ts is authorized for
func (s *Service) ProfileEmail(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	srv, err := s.GetGmailService(ctx, ts)
	if err != nil {
		return "", err
	}

	profile, err := srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to get profile: %w", err)
	}
	return profile.EmailAddress, nil
}

// ListRecentThreads returns the ids of the most recent threads, newest first.
func (s *Service) ListRecentThreads(ctx context.Context, ts oauth2.TokenSource, max int64) ([]string, error) {
	srv, err := s.GetGmailService(ctx, ts)
	if err != nil {
		return nil, err
	}

	if max <= 0 {
		max = 10
	}

	resp, err := srv.Users.Threads.List("me").MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list threads: %w", err)
	}

	ids := make([]string, 0, len(resp.Threads))
	for _, t := range resp.Threads {
		ids = append(ids, t.Id)
	}
	return ids, nil
}

// GetThreadDetail fetches a thread with metadata only; bodies are not needed.
func (s *Service) GetThreadDetail(ctx context.Context, ts oauth2.TokenSource, threadID string) (*ThreadDetail, error) {
	srv, err := s.GetGmailService(ctx, ts)
	if err != nil {
		return nil, err
	}

	thread, err := srv.Users.Threads.Get("me", threadID).
		Format("metadata").
		MetadataHeaders("From", "Subject", "To", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve thread %s: %w", threadID, err)
	}

	detail := &ThreadDetail{
		ID:      thread.Id,
		Snippet: thread.Snippet,
		Headers: map[string]string{},
	}
	if len(thread.Messages) == 0 || thread.Messages[0].Payload == nil {
		return detail, nil
	}

	first := thread.Messages[0]
	if detail.Snippet == "" {
		detail.Snippet = first.Snippet
	}
	for _, h := range first.Payload.Headers {
		detail.Headers[strings.ToLower(h.Name)] = h.Value
	}
	detail.Subject = detail.Headers["subject"]
	detail.From = detail.Headers["from"]
	return detail, nil
}

// HasMessages reports whether the thread detail carried a first message.
func (d *ThreadDetail) HasMessages() bool {
	return len(d.Headers) > 0
}

// SendEmail sends a plain-text message from the authorized account
func (s *Service) SendEmail(ctx context.Context, ts oauth2.TokenSource, to, subject, body string) (string, error) {
	srv, err := s.GetGmailService(ctx, ts)
	if err != nil {
		return "", err
	}

	var emailMsg bytes.Buffer
	emailMsg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	// Encode subject to handle non-ASCII characters (RFC 2047)
	encodedSubject := fmt.Sprintf("=?utf-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte(subject)))
	emailMsg.WriteString(fmt.Sprintf("Subject: %s\r\n", encodedSubject))
	emailMsg.WriteString("MIME-Version: 1.0\r\n")
	emailMsg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	emailMsg.WriteString(body)

	msg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(emailMsg.Bytes()),
	}

	sent, err := srv.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to send message: %w", err)
	}
	return sent.Id, nil
}

// Watch registers the mailbox for Pub/Sub push notifications on topicName.
func (s *Service) Watch(ctx context.Context, ts oauth2.TokenSource, topicName string) error {
	srv, err := s.GetGmailService(ctx, ts)
	if err != nil {
		return err
	}

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}
	if _, err := srv.Users.Watch("me", req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to watch mailbox: %w", err)
	}
	return nil
}
