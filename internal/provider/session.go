package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"salesdash/internal/config"
)

// Session supplies credentials for provider calls.
type Session interface {
	Token(ctx context.Context) (*oauth2.Token, error)
	Refresh(ctx context.Context) (*oauth2.Token, error)
}

// TokenStore persists the token set of a connection.
type TokenStore interface {
	LoadToken(key string) (*oauth2.Token, error)
	SaveToken(key string, token *oauth2.Token) error
}

// OAuthSession keeps the current token for one tenant connection and refreshes
// it through the provider's token endpoint. Refreshed tokens are written back
// to the store so the rotated refresh token survives restarts.
type OAuthSession struct {
	oauth *oauth2.Config
	store TokenStore
	key   string

	mu      sync.Mutex
	current *oauth2.Token
}

func OAuthConfig(cfg config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURL:  cfg.OAuthRedirectURI,
		Scopes:       cfg.OAuthScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.OAuthAuthURL,
			TokenURL:  cfg.OAuthTokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// NewOAuthSession builds a session for key. A refresh token from the
// environment seeds the session when the store has nothing yet.
func NewOAuthSession(oauthCfg *oauth2.Config, store TokenStore, key, seedRefreshToken string) *OAuthSession {
	s := &OAuthSession{oauth: oauthCfg, store: store, key: key}
	if strings.TrimSpace(seedRefreshToken) != "" {
		s.current = &oauth2.Token{RefreshToken: strings.TrimSpace(seedRefreshToken)}
	}
	return s
}

func (s *OAuthSession) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	if s.current == nil {
		return nil, ErrNoSession
	}
	if s.current.Valid() {
		return s.current, nil
	}
	if s.current.RefreshToken == "" {
		return nil, ErrNoSession
	}
	return s.refreshLocked(ctx)
}

func (s *OAuthSession) Refresh(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	if s.current == nil || s.current.RefreshToken == "" {
		return nil, ErrNoSession
	}
	return s.refreshLocked(ctx)
}

func (s *OAuthSession) loadLocked() error {
	if s.current != nil && s.current.AccessToken != "" {
		return nil
	}
	if s.store == nil {
		return nil
	}
	stored, err := s.store.LoadToken(s.key)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if stored != nil {
		s.current = stored
	}
	return nil
}

func (s *OAuthSession) refreshLocked(ctx context.Context) (*oauth2.Token, error) {
	// A token without an access token is never valid, so the source is forced
	// to hit the token endpoint.
	src := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: s.current.RefreshToken})
	next, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w: %v", ErrUnauthorized, err)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = s.current.RefreshToken
	}
	s.current = next
	if s.store != nil {
		if err := s.store.SaveToken(s.key, next); err != nil {
			return nil, fmt.Errorf("save refreshed token: %w", err)
		}
	}
	return next, nil
}

// Exchange trades an authorization code for a token set and stores it.
func (s *OAuthSession) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = tok
	if s.store != nil {
		if err := s.store.SaveToken(s.key, tok); err != nil {
			return nil, fmt.Errorf("save token: %w", err)
		}
	}
	return tok, nil
}

func (s *OAuthSession) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}
