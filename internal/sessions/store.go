// Package sessions persists the mapping from conversation identity
// (session key) to agent CLI session ID. The store is a single JSON
// document shared by the dispatcher, the adapters and the approval hook,
// so there is no in-process cache and every mutation runs under an
// advisory file lock.
package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAge is the staleness threshold for CleanupStale.
const DefaultMaxAge = 30 * 24 * time.Hour

// Entry maps one session key to a live agent CLI session.
type Entry struct {
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	CreatedAt int64  `json:"createdAt"` // unix ms
}

// Store is the on-disk session document plus its lock file.
type Store struct {
	path string
	lock fileLock
}

// NewStore opens a store at path, with the lock file beside it.
func NewStore(path, lockPath string) *Store {
	return &Store{path: path, lock: fileLock{path: lockPath}}
}

// load reads the whole document. Missing or corrupt files are an empty map;
// state files are never retried, per the bus error policy.
func (s *Store) load() map[string]Entry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return map[string]Entry{}
	}
	var m map[string]Entry
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]Entry{}
	}
	return m
}

// save writes the document atomically (temp file + rename).
func (s *Store) save(m map[string]Entry) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write sessions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync sessions: %w", err)
	}
	tmp.Close()
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace sessions: %w", err)
	}
	return nil
}

// Get returns the entry for a session key. Always re-reads from disk:
// another process may have mutated the document since the last call.
func (s *Store) Get(key string) (Entry, bool) {
	e, ok := s.load()[key]
	return e, ok
}

// Create generates a fresh session ID for the key, overwriting any prior
// entry, and returns the new ID.
func (s *Store) Create(key, agentID string) (string, error) {
	if err := s.lock.acquire(); err != nil {
		return "", err
	}
	defer s.lock.release()

	id := uuid.NewString()
	m := s.load()
	m[key] = Entry{SessionID: id, AgentID: agentID, CreatedAt: time.Now().UnixMilli()}
	if err := s.save(m); err != nil {
		return "", err
	}
	return id, nil
}

// Remap moves the entry at oldKey to newKey. Used when an adapter converts
// a channel message into a thread: continuity belongs to the thread, not
// the message that birthed it. No-op when oldKey is absent.
func (s *Store) Remap(oldKey, newKey string) error {
	if err := s.lock.acquire(); err != nil {
		return err
	}
	defer s.lock.release()

	m := s.load()
	e, ok := m[oldKey]
	if !ok {
		return nil
	}
	m[newKey] = e
	delete(m, oldKey)
	return s.save(m)
}

// Delete removes the entry for a key.
func (s *Store) Delete(key string) error {
	if err := s.lock.acquire(); err != nil {
		return err
	}
	defer s.lock.release()

	m := s.load()
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return s.save(m)
}

// CleanupStale drops entries older than maxAge (DefaultMaxAge when zero).
// Returns how many were removed.
func (s *Store) CleanupStale(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if err := s.lock.acquire(); err != nil {
		return 0, err
	}
	defer s.lock.release()

	m := s.load()
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	removed := 0
	for key, e := range m {
		if e.CreatedAt < cutoff {
			delete(m, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save(m)
}

// DMSessionKey builds the session key for a direct-message conversation.
func DMSessionKey(userID string) string {
	return "dm_" + userID
}
