package export

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
)

// Scopes requested by the consent flow. drive.file limits access to files
// this app created.
var Scopes = []string{drive.DriveFileScope, docs.DocumentsScope}

// LoadOAuthConfig reads a Google client secrets file ("web" or "installed").
func LoadOAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	return cfg, nil
}

// AuthCodeURL is the consent page the operator opens once.
func AuthCodeURL(cfg *oauth2.Config) string {
	return cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeAndSave trades an authorization code for a token and stores it.
func ExchangeAndSave(ctx context.Context, cfg *oauth2.Config, store *TokenStore, code string) error {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging code: %w", err)
	}
	return store.Save(tok)
}

// HTTPClient returns an authorized client. Refreshed tokens are written back
// to the store.
func HTTPClient(ctx context.Context, cfg *oauth2.Config, store *TokenStore, logger *slog.Logger) (*http.Client, error) {
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}

	src := &savingTokenSource{
		base:   cfg.TokenSource(ctx, tok),
		store:  store,
		last:   tok.AccessToken,
		logger: logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

type savingTokenSource struct {
	base   oauth2.TokenSource
	store  *TokenStore
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.Save(tok); err != nil {
			s.logger.Warn("failed to persist refreshed oauth token", "error", err)
		}
	}
	return tok, nil
}
