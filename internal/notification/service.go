package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	ingestUsecase "advisor-backend/internal/ingest/usecase"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes for a watched mailbox
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Ingester pulls the owner's recent threads into the record store
type Ingester interface {
	IngestGmail(ctx context.Context, req ingestUsecase.Request) (*ingestUsecase.Result, error)
}

// Service listens for Gmail push notifications and ingests the mailbox that
// changed, so the next instruction pass sees new mail without a manual ingest.
type Service struct {
	pubsubClient *pubsub.Client
	ingester     Ingester
	topicName    string
	subName      string
	log          *zap.Logger

	mu sync.Mutex
	// last historyId handled per owner
	lastHistoryID map[string]uint64
}

func NewService(ctx context.Context, projectID, topicName, credentialsFile string, ingester Ingester, log *zap.Logger) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	s := newService(ingester, log)
	s.pubsubClient = client
	s.topicName = topicName
	s.subName = topicName + "-sub"
	return s, nil
}

func newService(ingester Ingester, log *zap.Logger) *Service {
	return &Service{
		ingester:      ingester,
		log:           log.Named("pubsub"),
		lastHistoryID: make(map[string]uint64),
	}
}

// TopicName is the fully qualified topic handed to Gmail watch requests
func (s *Service) TopicName() string {
	return fmt.Sprintf("projects/%s/topics/%s", s.pubsubClient.Project(), s.topicName)
}

// Start blocks receiving messages until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	s.log.Info("starting notification service", zap.String("topic", s.topicName), zap.String("subscription", s.subName))

	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		s.log.Error("subscription unavailable", zap.Error(err))
		return
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := s.HandleNotification(ctx, msg.Data); err != nil {
			s.log.Warn("notification not handled", zap.Error(err))
		}
		msg.Ack()
	})
	if err != nil {
		s.log.Error("error receiving messages", zap.Error(err))
	}
}

func (s *Service) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking subscription: %w", err)
	}
	if exists {
		return sub, nil
	}

	topic := s.pubsubClient.Topic(s.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking topic: %w", err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist", s.topicName)
	}

	sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating subscription: %w", err)
	}
	s.log.Info("created subscription", zap.String("subscription", s.subName))
	return sub, nil
}

// HandleNotification ingests the mailbox named in a Gmail notification. A
// historyId at or below the last one seen for the owner is ignored.
func (s *Service) HandleNotification(ctx context.Context, data []byte) error {
	var n GmailNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	owner := strings.ToLower(strings.TrimSpace(n.EmailAddress))
	if owner == "" {
		return fmt.Errorf("notification has no email address")
	}

	if !s.advance(owner, n.HistoryID) {
		s.log.Debug("skipping duplicate notification", zap.String("owner", owner), zap.Uint64("history_id", n.HistoryID))
		return nil
	}

	res, err := s.ingester.IngestGmail(ctx, ingestUsecase.Request{Owner: owner})
	if err != nil {
		return fmt.Errorf("ingest for %s: %w", owner, err)
	}
	s.log.Info("mailbox ingested",
		zap.String("owner", owner),
		zap.Uint64("history_id", n.HistoryID),
		zap.Int("inserted", res.Inserted),
	)
	return nil
}

func (s *Service) advance(owner string, historyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastHistoryID[owner]; ok && historyID <= last {
		return false
	}
	s.lastHistoryID[owner] = historyID
	return true
}

func (s *Service) Close() error {
	return s.pubsubClient.Close()
}
