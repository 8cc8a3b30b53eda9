package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/danhigham/tgupload/internal/domain"
)

// Settings keys shared by the shell and the components.
const (
	KeyAPIID            = "api_id"
	KeyAPIHash          = "api_hash"
	KeyPhone            = "phone"
	KeyFolder           = "folder"
	KeyPrefixText       = "prefix_text"
	KeySelectedChatID   = "selected_chat_id"
	KeySelectedChatName = "selected_chat_name"
	KeyDelaySeconds     = "delay_seconds"
	KeyConcurrency      = "concurrency"
)

// Store is a flat key/value settings file. The whole file is read on
// construction and rewritten on every Set.
type Store struct {
	mu     sync.RWMutex
	path   string
	data   map[string]any
	logger *zap.Logger
}

// New loads the settings at path. A missing or unreadable file yields an
// empty store; the error is logged, not returned.
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:   path,
		data:   make(map[string]any),
		logger: logger,
	}
	s.load()
	return s
}

func (s *Store) load() {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		s.logger.Warn("read settings", zap.String("path", s.path), zap.Error(err))
		return
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	data := make(map[string]any)
	if err := dec.Decode(&data); err != nil {
		s.logger.Warn("parse settings", zap.String("path", s.path), zap.Error(err))
		return
	}
	s.data = data
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value stored under key, or def.
func (s *Store) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok || v == nil {
		return def
	}
	return v
}

// Set stores value and rewrites the file.
func (s *Store) Set(key string, value any) error {
	return s.SetMany(map[string]any{key: value})
}

// SetMany stores several values with a single rewrite.
func (s *Store) SetMany(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.data[k] = v
	}
	return s.save()
}

// save writes to a temp file in the same directory and renames it over the
// target, so a crash leaves either the old or the new file.
func (s *Store) save() error {
	out, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("remove temp settings", zap.String("path", tmpName), zap.Error(rmErr))
		}
	}

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// String returns the value under key rendered as text.
func (s *Store) String(key, def string) string {
	switch v := s.Get(key, nil).(type) {
	case nil:
		return def
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the value under key as an integer, or def if absent or
// not numeric.
func (s *Store) Int64(key string, def int64) int64 {
	switch v := s.Get(key, nil).(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// Int is Int64 narrowed to int.
func (s *Store) Int(key string, def int) int {
	return int(s.Int64(key, int64(def)))
}

// Credentials parses the stored api_id, api_hash and phone.
func (s *Store) Credentials() (domain.Credentials, error) {
	return domain.ParseCredentials(
		s.String(KeyAPIID, ""),
		s.String(KeyAPIHash, ""),
		s.String(KeyPhone, ""),
	)
}
