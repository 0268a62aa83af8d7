package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"filippo.io/age"
	"golang.org/x/oauth2"
)

// ErrNoToken means the consent flow has not been run yet.
var ErrNoToken = errors.New("export: no saved oauth token")

// TokenStore persists the OAuth token on disk. With an age identity the file
// is encrypted to that identity's recipient; without one it is plain JSON.
type TokenStore struct {
	path     string
	identity *age.X25519Identity
}

// NewTokenStore parses key as an age X25519 identity ("AGE-SECRET-KEY-1...").
// An empty key stores the token unencrypted.
func NewTokenStore(path, key string) (*TokenStore, error) {
	s := &TokenStore{path: path}
	if key == "" {
		return s, nil
	}

	identity, err := age.ParseX25519Identity(key)
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	s.identity = identity
	return s, nil
}

// GenerateKey returns a new age identity for EXPORT_TOKEN_KEY.
func GenerateKey() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating identity: %w", err)
	}
	return identity.String(), nil
}

func (s *TokenStore) Encrypted() bool {
	return s.identity != nil
}

func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}

	if s.identity != nil {
		r, err := age.Decrypt(bytes.NewReader(data), s.identity)
		if err != nil {
			return nil, fmt.Errorf("decrypting token: %w", err)
		}
		if data, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("reading decrypted token: %w", err)
		}
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return &tok, nil
}

func (s *TokenStore) Save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	if s.identity != nil {
		var buf bytes.Buffer
		w, err := age.Encrypt(&buf, s.identity.Recipient())
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("encrypting token: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("closing encryptor: %w", err)
		}
		data = buf.Bytes()
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating token dir: %w", err)
		}
	}
	// Write then rename; readers never see a partial file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing token: %w", err)
	}
	return nil
}
