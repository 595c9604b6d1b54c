package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"paytrack/internal/crypto"
)

// FileStore keeps the token sealed on disk.
type FileStore struct {
	path   string
	secret []byte
	mu     sync.Mutex
}

func NewFileStore(path string, secret []byte) *FileStore {
	return &FileStore{path: path, secret: secret}
}

func (s *FileStore) Load(_ context.Context) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Token{}, ErrNoToken
	}
	if err != nil {
		return Token{}, fmt.Errorf("read token file: %w", err)
	}
	sealed := strings.TrimSpace(string(b))
	if sealed == "" {
		return Token{}, ErrNoToken
	}
	return openToken(s.secret, sealed)
}

func (s *FileStore) Save(_ context.Context, t Token) error {
	sealed, err := sealToken(s.secret, t)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.WriteString(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

func sealToken(secret []byte, t Token) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return crypto.Seal(secret, b)
}

func openToken(secret []byte, sealed string) (Token, error) {
	pt, err := crypto.Open(secret, sealed)
	if err != nil {
		return Token{}, fmt.Errorf("open stored token: %w", err)
	}
	var t Token
	if err := json.Unmarshal(pt, &t); err != nil {
		return Token{}, fmt.Errorf("decode stored token: %w", err)
	}
	return t, nil
}
