// Package auth builds authorized HTTP clients for the Gmail API.
//
// It reads an OAuth client credentials.json and the authorized-user
// token.json stored beside it, in the format written by Google's
// google-auth tooling, so an existing token works without a new consent
// flow.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// GmailScopes are requested when parsing credentials. Reading is all the
// extraction pipeline needs.
var GmailScopes = []string{gmail.GmailReadonlyScope}

// TokenFile is the token file name looked up next to credentials.json.
const TokenFile = "token.json"

const expiryLayout = "2006-01-02T15:04:05.999999Z"

// expiry is the token expiry as google-auth writes it: UTC with
// microseconds and no offset. RFC 3339 with an offset is also read.
type expiry time.Time

func (e *expiry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*e = expiry{}
		return nil
	}
	t, err := time.Parse(expiryLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return fmt.Errorf("expiry %q: %w", s, err)
		}
	}
	*e = expiry(t)
	return nil
}

func (e expiry) MarshalJSON() ([]byte, error) {
	t := time.Time(e)
	if t.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(t.UTC().Format(expiryLayout))
}

// authorizedUser is the token.json document.
type authorizedUser struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	Expiry       expiry   `json:"expiry"`
}

func (u *authorizedUser) oauth() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  u.Token,
		RefreshToken: u.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Time(u.Expiry),
	}
}

// GmailClient returns an HTTP client authorized with the token stored
// beside credentialsPath. The token is refreshed up front so a revoked
// grant fails here. Every refreshed token is written back; failing to save
// one is logged, not returned.
func GmailClient(ctx context.Context, credentialsPath string, log *zap.Logger) (*http.Client, error) {
	config, err := loadOAuthConfig(credentialsPath)
	if err != nil {
		return nil, err
	}

	store := &tokenStore{
		path:   filepath.Join(filepath.Dir(credentialsPath), TokenFile),
		config: config,
		log:    log,
	}
	token, err := store.load()
	if err != nil {
		return nil, fmt.Errorf("load token from %s: %w", store.path, err)
	}

	ts := oauth2.ReuseTokenSource(token, &savingSource{
		base:  config.TokenSource(ctx, token),
		store: store,
		last:  token.AccessToken,
	})
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return oauth2.NewClient(ctx, ts), nil
}

func loadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials from %s: %w", credentialsPath, err)
	}
	config, err := google.ConfigFromJSON(data, GmailScopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return config, nil
}

// tokenStore reads and writes one token.json.
type tokenStore struct {
	path   string
	config *oauth2.Config
	log    *zap.Logger
}

func (s *tokenStore) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var u authorizedUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return u.oauth(), nil
}

func (s *tokenStore) save(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(authorizedUser{
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     s.config.Endpoint.TokenURL,
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		Scopes:       s.config.Scopes,
		Expiry:       expiry(tok.Expiry),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// savingSource persists each token base hands out that differs from the
// last one seen.
type savingSource struct {
	base  oauth2.TokenSource
	store *tokenStore
	mu    sync.Mutex
	last  string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.store.save(tok); err != nil {
			s.store.log.Warn("could not save refreshed token", zap.String("path", s.store.path), zap.Error(err))
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}
