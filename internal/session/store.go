package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store persists the opaque Odoo session id. At most one session is
// tracked per installation.
type Store interface {
	Get(ctx context.Context) (string, error)
	Save(ctx context.Context, sid string) error
	Clear(ctx context.Context) error
}

// FileStore keeps the session id in a single file, created with 0600.
// Writes go through a temp file and rename so a crash never leaves a
// half-written session behind.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) Save(ctx context.Context, sid string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sid), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Clear(ctx context.Context) error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryStore is an in-process Store used by tests and short-lived commands.
type MemoryStore struct {
	mu  sync.RWMutex
	sid string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sid, nil
}

func (s *MemoryStore) Save(ctx context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sid = sid
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sid = ""
	return nil
}
