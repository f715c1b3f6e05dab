package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"advisor-backend/internal/connection/domain"
	"advisor-backend/internal/connection/repository"
	"advisor-backend/pkg/config"
	"advisor-backend/pkg/hubspot"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

var (
	ErrNotConnected    = errors.New("owner has not connected this provider")
	ErrInvalidState    = errors.New("invalid or expired oauth state")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingOwner    = errors.New("owner email could not be determined")
	ErrOwnerMismatch   = errors.New("consenting account does not match the requested owner")
	ErrInvalidSession  = errors.New("invalid or expired session")
)

const (
	stateTTL = 10 * time.Minute

	// Audiences keep a state token from being accepted as a session and back
	stateAudience   = "oauth-state"
	sessionAudience = "session"
)

var googleScopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
	calendar.CalendarScope,
	oauth2api.UserinfoEmailScope,
}

// MailboxWatcher subscribes a freshly connected mailbox to push notifications
type MailboxWatcher interface {
	Watch(ctx context.Context, ts oauth2.TokenSource, topicName string) error
}

type ConnectionUsecase interface {
	AuthURL(provider domain.Provider, ownerEmail string) (string, error)
	HandleCallback(ctx context.Context, provider domain.Provider, code, state string) (*domain.Credential, error)
	TokenSource(ctx context.Context, ownerEmail string, provider domain.Provider) (oauth2.TokenSource, error)
	Owners(provider domain.Provider) ([]string, error)

	IssueSession(ownerEmail string) (string, error)
	ValidateSession(token string) (string, error)

	RegisterDevice(ownerEmail, token, deviceInfo string) error
	UnregisterDevice(ownerEmail, token string) error
	DeviceTokens(ownerEmail string) ([]string, error)

	SetMailboxWatcher(w MailboxWatcher, topicName string)
}

type connectionUsecase struct {
	credRepo repository.CredentialRepository
	fcmRepo  repository.FCMTokenRepository
	configs  map[domain.Provider]*oauth2.Config
	secret   []byte
	ttl      time.Duration
	log      *zap.Logger

	// resolveEmail looks up the account email behind a Google token
	resolveEmail func(ctx context.Context, ts oauth2.TokenSource) (string, error)

	watcher    MailboxWatcher
	watchTopic string
}

func NewConnectionUsecase(
	credRepo repository.CredentialRepository,
	fcmRepo repository.FCMTokenRepository,
	cfg *config.Config,
	log *zap.Logger,
) ConnectionUsecase {
	return &connectionUsecase{
		credRepo: credRepo,
		fcmRepo:  fcmRepo,
		configs: map[domain.Provider]*oauth2.Config{
			domain.ProviderGoogle: {
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURL:  cfg.GoogleRedirectURI,
				Scopes:       googleScopes,
				Endpoint:     google.Endpoint,
			},
			domain.ProviderHubSpot: hubspot.OAuthConfig(cfg.HubSpotClientID, cfg.HubSpotClientSecret, cfg.HubSpotRedirectURI),
		},
		secret:       []byte(cfg.StateSecret),
		ttl:          cfg.SessionTTL,
		log:          log.Named("connection"),
		resolveEmail: googleAccountEmail,
	}
}

// SetMailboxWatcher enables Gmail push registration after a Google connect
func (u *connectionUsecase) SetMailboxWatcher(w MailboxWatcher, topicName string) {
	u.watcher = w
	u.watchTopic = topicName
}

type stateClaims struct {
	Owner    string `json:"owner,omitempty"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

func (u *connectionUsecase) signState(provider domain.Provider, ownerEmail string) (string, error) {
	claims := stateClaims{
		Owner:    strings.ToLower(strings.TrimSpace(ownerEmail)),
		Provider: string(provider),
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{stateAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(stateTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.secret)
}

func (u *connectionUsecase) parseState(state string, provider domain.Provider) (*stateClaims, error) {
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(token *jwt.Token) (interface{}, error) {
		return u.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience(stateAudience))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.Provider != string(provider) {
		return nil, fmt.Errorf("%w: provider mismatch", ErrInvalidState)
	}
	return claims, nil
}

// IssueSession signs a bearer token naming the owner. Only a completed Google
// connection should call it.
func (u *connectionUsecase) IssueSession(ownerEmail string) (string, error) {
	owner := strings.ToLower(strings.TrimSpace(ownerEmail))
	if owner == "" {
		return "", ErrMissingOwner
	}
	ttl := u.ttl
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	claims := jwt.RegisteredClaims{
		Subject:   owner,
		Audience:  jwt.ClaimStrings{sessionAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.secret)
}

// ValidateSession returns the owner a session token was issued to
func (u *connectionUsecase) ValidateSession(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return u.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience(sessionAudience), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidSession
	}
	return claims.Subject, nil
}

func (u *connectionUsecase) oauthConfig(provider domain.Provider) (*oauth2.Config, error) {
	cfg, ok := u.configs[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return cfg, nil
}

// AuthURL builds the consent URL. ownerEmail may be empty for Google, in which
// case the callback resolves it from the account.
func (u *connectionUsecase) AuthURL(provider domain.Provider, ownerEmail string) (string, error) {
	cfg, err := u.oauthConfig(provider)
	if err != nil {
		return "", err
	}
	if provider == domain.ProviderHubSpot && ownerEmail == "" {
		return "", ErrMissingOwner
	}

	state, err := u.signState(provider, ownerEmail)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}

	if provider == domain.ProviderGoogle {
		return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
	}
	return cfg.AuthCodeURL(state), nil
}

func (u *connectionUsecase) HandleCallback(ctx context.Context, provider domain.Provider, code, state string) (*domain.Credential, error) {
	cfg, err := u.oauthConfig(provider)
	if err != nil {
		return nil, err
	}

	claims, err := u.parseState(state, provider)
	if err != nil {
		return nil, err
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	owner := claims.Owner
	if provider == domain.ProviderGoogle {
		// The account that consented is the owner; a requested owner must match it
		account, err := u.resolveEmail(ctx, oauth2.StaticTokenSource(token))
		if err != nil {
			return nil, fmt.Errorf("failed to get user info: %w", err)
		}
		account = strings.ToLower(strings.TrimSpace(account))
		if owner != "" && owner != account {
			u.log.Warn("google consent for a different account",
				zap.String("requested", owner), zap.String("account", account))
			return nil, fmt.Errorf("%w: requested %s", ErrOwnerMismatch, owner)
		}
		owner = account
	}
	if owner == "" {
		return nil, ErrMissingOwner
	}

	cred := &domain.Credential{
		OwnerEmail:   owner,
		Provider:     provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}
	if err := u.credRepo.Save(cred); err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}
	u.log.Info("provider connected", zap.String("owner", owner), zap.String("provider", string(provider)))

	if provider == domain.ProviderGoogle && u.watcher != nil && u.watchTopic != "" {
		if err := u.watcher.Watch(ctx, oauth2.StaticTokenSource(token), u.watchTopic); err != nil {
			u.log.Warn("mailbox watch failed", zap.String("owner", owner), zap.Error(err))
		}
	}

	return cred, nil
}

// TokenSource returns a token source for the owner that refreshes through
// the provider and writes refreshed tokens back to the store.
func (u *connectionUsecase) TokenSource(ctx context.Context, ownerEmail string, provider domain.Provider) (oauth2.TokenSource, error) {
	cfg, err := u.oauthConfig(provider)
	if err != nil {
		return nil, err
	}

	cred, err := u.credRepo.Find(strings.ToLower(ownerEmail), provider)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrNotConnected
	}

	current := cred.Token()
	return &persistingTokenSource{
		src:     cfg.TokenSource(ctx, current),
		current: current,
		save: func(t *oauth2.Token) error {
			return u.credRepo.Save(&domain.Credential{
				OwnerEmail:   cred.OwnerEmail,
				Provider:     provider,
				AccessToken:  t.AccessToken,
				RefreshToken: t.RefreshToken,
				TokenType:    t.TokenType,
				Expiry:       t.Expiry,
			})
		},
		log: u.log,
	}, nil
}

func (u *connectionUsecase) Owners(provider domain.Provider) ([]string, error) {
	return u.credRepo.ListOwners(provider)
}

func (u *connectionUsecase) RegisterDevice(ownerEmail, token, deviceInfo string) error {
	return u.fcmRepo.SaveToken(strings.ToLower(ownerEmail), token, deviceInfo)
}

func (u *connectionUsecase) UnregisterDevice(ownerEmail, token string) error {
	return u.fcmRepo.DeleteToken(strings.ToLower(ownerEmail), token)
}

func (u *connectionUsecase) DeviceTokens(ownerEmail string) ([]string, error) {
	tokens, err := u.fcmRepo.GetTokensByOwner(strings.ToLower(ownerEmail))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Token)
	}
	return out, nil
}

// persistingTokenSource saves the token whenever the underlying source hands
// out a new access token.
type persistingTokenSource struct {
	mu      sync.Mutex
	src     oauth2.TokenSource
	current *oauth2.Token
	save    func(*oauth2.Token) error
	log     *zap.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.current == nil || s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.save(t); err != nil {
			s.log.Warn("failed to persist refreshed token", zap.Error(err))
		}
	}
	return t, nil
}

func googleAccountEmail(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return "", err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return info.Email, nil
}
