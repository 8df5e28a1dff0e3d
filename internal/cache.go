package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const cacheVersion = "2.0"

// CacheManager keeps a read-only replay copy of sessions and transcripts
type CacheManager struct {
	cacheDir string
}

// CacheMetadata records which backend and account the cache belongs to
type CacheMetadata struct {
	BaseURL      string    `json:"base_url" yaml:"base_url"`
	Username     string    `json:"username" yaml:"username"`
	CacheVersion string    `json:"cache_version" yaml:"cache_version"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// SessionIndexEntry represents a session entry in the index
type SessionIndexEntry struct {
	ID           int64     `yaml:"id"`
	Title        string    `yaml:"title,omitempty"`
	Mode         string    `yaml:"mode,omitempty"`
	CreatedAt    time.Time `yaml:"created_at,omitempty"`
	UpdatedAt    time.Time `yaml:"updated_at,omitempty"`
	MessageCount int       `yaml:"message_count"`
}

// SessionIndex represents the YAML index of all cached sessions
type SessionIndex struct {
	Sessions []SessionIndexEntry `yaml:"sessions"`
	Metadata CacheMetadata       `yaml:"metadata"`
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string) *CacheManager {
	return &CacheManager{
		cacheDir: cacheDir,
	}
}

// EnsureCacheDir ensures the cache directory exists
func (cm *CacheManager) EnsureCacheDir() error {
	return os.MkdirAll(cm.cacheDir, 0755)
}

// GetCacheDir returns the cache directory path
func (cm *CacheManager) GetCacheDir() string {
	return cm.cacheDir
}

// GetIndexPath returns the path to the session index YAML file
func (cm *CacheManager) GetIndexPath() string {
	return filepath.Join(cm.cacheDir, "sessions.yaml")
}

// GetSessionPath returns the path to a session's transcript file
func (cm *CacheManager) GetSessionPath(sessionID int64) string {
	return filepath.Join(cm.cacheDir, fmt.Sprintf("session_%d.json", sessionID))
}

// IsCacheValid reports whether the cache was written for this backend and account
func (cm *CacheManager) IsCacheValid(baseURL, username string) bool {
	index, err := cm.LoadIndex()
	if err != nil {
		return false
	}
	meta := index.Metadata
	return meta.CacheVersion == cacheVersion && meta.BaseURL == baseURL && meta.Username == username
}

// Claim prepares the cache for writes by baseURL and username. A cache
// written for another backend or account is cleared first.
func (cm *CacheManager) Claim(baseURL, username string) error {
	if cm.IsCacheValid(baseURL, username) {
		return nil
	}
	if err := cm.ClearCache(); err != nil {
		return err
	}
	now := time.Now()
	return cm.SaveIndex(&SessionIndex{
		Sessions: []SessionIndexEntry{},
		Metadata: CacheMetadata{
			BaseURL:      baseURL,
			Username:     username,
			CacheVersion: cacheVersion,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	})
}

// LoadIndex loads the session index
func (cm *CacheManager) LoadIndex() (*SessionIndex, error) {
	data, err := os.ReadFile(cm.GetIndexPath())
	if err != nil {
		return nil, err
	}

	var index SessionIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal index")
	}
	return &index, nil
}

// SaveIndex saves the session index
func (cm *CacheManager) SaveIndex(index *SessionIndex) error {
	if err := cm.EnsureCacheDir(); err != nil {
		return err
	}

	data, err := yaml.Marshal(index)
	if err != nil {
		return errors.Wrap(err, "failed to marshal index")
	}
	return os.WriteFile(cm.GetIndexPath(), data, 0644)
}

// SaveSessions replaces the index with the given session list. Entries for
// sessions whose transcript is already cached keep their message count.
func (cm *CacheManager) SaveSessions(sessions []Session, baseURL, username string) error {
	now := time.Now()
	index := &SessionIndex{
		Sessions: make([]SessionIndexEntry, 0, len(sessions)),
		Metadata: CacheMetadata{
			BaseURL:      baseURL,
			Username:     username,
			CacheVersion: cacheVersion,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}

	counts := make(map[int64]int)
	if existing, err := cm.LoadIndex(); err == nil {
		if existing.Metadata.BaseURL == baseURL && existing.Metadata.Username == username {
			index.Metadata.CreatedAt = existing.Metadata.CreatedAt
			for _, entry := range existing.Sessions {
				counts[entry.ID] = entry.MessageCount
			}
		}
	}

	for _, s := range sessions {
		index.Sessions = append(index.Sessions, SessionIndexEntry{
			ID:           s.ID,
			Title:        s.Title,
			Mode:         s.Mode,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
			MessageCount: counts[s.ID],
		})
	}
	return cm.SaveIndex(index)
}

// SaveConversation writes a transcript and updates its index entry
func (cm *CacheManager) SaveConversation(conv *Conversation) error {
	if err := cm.EnsureCacheDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal conversation")
	}
	if err := os.WriteFile(cm.GetSessionPath(conv.ID), data, 0644); err != nil {
		return err
	}

	index, err := cm.LoadIndex()
	if err != nil {
		// Transcript without an index is still loadable by id
		return nil
	}

	entry := SessionIndexEntry{
		ID:           conv.ID,
		Title:        conv.Title,
		Mode:         conv.Mode,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		MessageCount: len(conv.Messages),
	}
	found := false
	for i := range index.Sessions {
		if index.Sessions[i].ID == conv.ID {
			index.Sessions[i] = entry
			found = true
			break
		}
	}
	if !found {
		index.Sessions = append(index.Sessions, entry)
	}
	index.Metadata.UpdatedAt = time.Now()
	return cm.SaveIndex(index)
}

// LoadConversation loads a single cached transcript
func (cm *CacheManager) LoadConversation(sessionID int64) (*Conversation, error) {
	data, err := os.ReadFile(cm.GetSessionPath(sessionID))
	if err != nil {
		return nil, err
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal conversation")
	}
	return &conv, nil
}

// CachedSessions returns the sessions recorded in the index, in index order
func (cm *CacheManager) CachedSessions() ([]Session, error) {
	index, err := cm.LoadIndex()
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(index.Sessions))
	for _, entry := range index.Sessions {
		sessions = append(sessions, Session{
			ID:        entry.ID,
			Title:     entry.Title,
			Mode:      entry.Mode,
			CreatedAt: entry.CreatedAt,
			UpdatedAt: entry.UpdatedAt,
		})
	}
	return sessions, nil
}

// LoadAllConversations loads every cached transcript. Sessions without a
// cached transcript are returned with no messages.
func (cm *CacheManager) LoadAllConversations() ([]*Conversation, error) {
	sessions, err := cm.CachedSessions()
	if err != nil {
		return nil, err
	}

	conversations := make([]*Conversation, 0, len(sessions))
	for _, s := range sessions {
		conv, err := cm.LoadConversation(s.ID)
		if err != nil {
			if !os.IsNotExist(err) {
				LogWarn("Skipping cached session %d: %v", s.ID, err)
				continue
			}
			conv = &Conversation{Session: s}
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

// ClearCache removes the index and every transcript file
func (cm *CacheManager) ClearCache() error {
	matches, _ := filepath.Glob(filepath.Join(cm.cacheDir, "session_*.json"))
	for _, path := range matches {
		_ = os.Remove(path)
	}

	if err := os.Remove(cm.GetIndexPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
