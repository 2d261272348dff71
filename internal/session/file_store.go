package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"ship/internal/logging"
	"ship/internal/ship/ports"
	"ship/internal/utils"
)

const readCacheSize = 128

// fileStore persists one JSON document per session under baseDir. Reads go
// through an LRU cache keyed by session ID; any write invalidates the entry.
type fileStore struct {
	baseDir string
	mu      sync.Mutex
	cache   *lru.Cache[string, *ports.Session]
	logger  logging.Logger
}

// NewFileStore returns a SessionStore backed by baseDir. The directory is
// created if missing.
func NewFileStore(baseDir string) (ports.SessionStore, error) {
	if strings.HasPrefix(baseDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		baseDir = filepath.Join(home, baseDir[2:])
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	cache, err := lru.New[string, *ports.Session](readCacheSize)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		baseDir: baseDir,
		cache:   cache,
		logger:  utils.NewComponentLogger("SessionFileStore"),
	}, nil
}

func (s *fileStore) path(id string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s.json", id))
}

func (s *fileStore) Create(ctx context.Context, session *ports.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	// O_EXCL makes ID collisions fail instead of silently overwriting.
	f, err := os.OpenFile(s.path(session.ID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return ports.ErrSessionExists
		}
		return fmt.Errorf("create session file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	s.cache.Remove(session.ID)
	return nil
}

func (s *fileStore) Get(ctx context.Context, id string) (*ports.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return cloneSession(stored)
}

// load returns the cached session or reads it from disk. Callers hold s.mu
// and must not hand the returned pointer outside without cloning.
func (s *fileStore) load(id string) (*ports.Session, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached, nil
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ports.ErrSessionNotFound
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var session ports.Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.logger.Error("Failed to decode session file %s: %v", id, err)
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	s.cache.Add(id, &session)
	return &session, nil
}

func (s *fileStore) Update(ctx context.Context, id string, mutate func(*ports.Session) error) (*ports.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(id)
	if err != nil {
		return nil, err
	}
	working, err := cloneSession(stored)
	if err != nil {
		return nil, err
	}
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.Version = stored.Version + 1
	working.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(working, "", "  ")
	if err != nil {
		return nil, err
	}
	// Write to a temp file and rename so readers never see a partial document.
	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return nil, fmt.Errorf("write session %s: %w", id, err)
	}
	if err := os.Rename(tmp, s.path(id)); err != nil {
		return nil, fmt.Errorf("persist session %s: %w", id, err)
	}
	s.cache.Add(id, working)
	return cloneSession(working)
}

func (s *fileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return ids, nil
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(id)
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
