// Package credstore provides durable persistence for opaque credential
// blobs, keyed by session ID. It is the only durable state in the
// system: credentials must outlive process restarts, and a save must be
// flushed before the session layer may treat itself as resumable.
package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blacksky-md/bslink/internal/errors"
	"github.com/blacksky-md/bslink/internal/event"
)

// CredentialsFileName is the blob file inside each session directory.
const CredentialsFileName = "credentials.bin"

// Store persists opaque credential blobs scoped by session ID.
type Store interface {
	// Load returns the stored blob, or ErrNoCredentials when the
	// session has none.
	Load(sessionID string) ([]byte, error)

	// Save durably persists the blob. It returns only after the data
	// has been flushed; a nil return means a later Load will see
	// exactly these bytes.
	Save(sessionID string, credentials []byte) error

	// Erase removes the session's credentials. Erasing a session that
	// has none is not an error.
	Erase(sessionID string) error

	// Exists reports whether credentials are stored for the session.
	Exists(sessionID string) bool
}

// SessionInfo summarizes one stored session for listings.
type SessionInfo struct {
	SessionID      string
	HasCredentials bool
	ModifiedAt     time.Time
}

// FileStore is a file-backed Store. Each session gets its own directory
// under the base dir; writes are atomic (temp file + rename + fsync).
// Operations on different sessions run in parallel; operations on the
// same session are serialized.
type FileStore struct {
	baseDir string
	bus     *event.Bus // optional

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// selfErased records erasures performed through this store so the
	// directory watcher can tell them apart from external deletions.
	selfErased map[string]time.Time
}

// NewFileStore creates a store rooted at baseDir, creating it if needed.
// The bus is optional; when set, the store publishes credentials.saved
// and credentials.erased events.
func NewFileStore(baseDir string, bus *event.Bus) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, errors.NewPersistenceError("failed to create credential directory", err).
			WithPath(baseDir)
	}
	return &FileStore{
		baseDir:    baseDir,
		bus:        bus,
		locks:      make(map[string]*sync.Mutex),
		selfErased: make(map[string]time.Time),
	}, nil
}

// BaseDir returns the root directory of the store.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

// Load retrieves the credential blob for a session.
func (s *FileStore) Load(sessionID string) ([]byte, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.credentialsPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrNoCredentials
		}
		return nil, errors.NewPersistenceError("failed to read credentials", err).
			WithSessionID(sessionID).WithPath(s.credentialsPath(sessionID))
	}
	if len(data) == 0 {
		return nil, errors.NewPersistenceError("credential file is empty", errors.ErrCredentialsCorrupted).
			WithSessionID(sessionID).WithPath(s.credentialsPath(sessionID))
	}
	return data, nil
}

// Save durably persists the credential blob for a session.
func (s *FileStore) Save(sessionID string, credentials []byte) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if len(credentials) == 0 {
		return errors.NewPersistenceError("refusing to save empty credentials", errors.ErrInvalidInput).
			WithSessionID(sessionID)
	}
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewPersistenceError("failed to create session directory", err).
			WithSessionID(sessionID).WithPath(dir)
	}
	if err := atomicWriteFile(s.credentialsPath(sessionID), credentials, 0600); err != nil {
		return errors.NewPersistenceError("failed to write credentials", err).
			WithSessionID(sessionID).WithPath(s.credentialsPath(sessionID))
	}
	if s.bus != nil {
		s.bus.Publish(event.NewCredentialsSavedEvent(sessionID))
	}
	return nil
}

// Erase removes the session's credentials and its directory.
func (s *FileStore) Erase(sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	dir := s.sessionDir(sessionID)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewPersistenceError("failed to check session directory", err).
			WithSessionID(sessionID).WithPath(dir)
	}

	s.markSelfErased(sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return errors.NewPersistenceError("failed to erase credentials", err).
			WithSessionID(sessionID).WithPath(dir)
	}
	if s.bus != nil {
		s.bus.Publish(event.NewCredentialsErasedEvent(sessionID, false))
	}
	return nil
}

// Exists reports whether a non-empty credential file is present.
func (s *FileStore) Exists(sessionID string) bool {
	if validateSessionID(sessionID) != nil {
		return false
	}
	info, err := os.Stat(s.credentialsPath(sessionID))
	return err == nil && info.Size() > 0
}

// List returns info for every session directory under the store,
// sorted by session ID.
func (s *FileStore) List() ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewPersistenceError("failed to list sessions", err).
			WithPath(s.baseDir)
	}

	var infos []SessionInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		info := SessionInfo{SessionID: id}
		if st, err := os.Stat(s.credentialsPath(id)); err == nil {
			info.HasCredentials = st.Size() > 0
			info.ModifiedAt = st.ModTime()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SessionID < infos[j].SessionID })
	return infos, nil
}

func (s *FileStore) sessionDir(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID)
}

func (s *FileStore) credentialsPath(sessionID string) string {
	return filepath.Join(s.sessionDir(sessionID), CredentialsFileName)
}

// sessionLock returns the per-session mutex, creating it on first use.
func (s *FileStore) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

func (s *FileStore) markSelfErased(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfErased[sessionID] = time.Now()
}

// wasSelfErased reports whether the store itself erased the session
// within the given window. Used by the watcher to skip events caused
// by Erase rather than by an external deletion.
func (s *FileStore) wasSelfErased(sessionID string, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.selfErased[sessionID]
	if !ok {
		return false
	}
	if time.Since(t) > window {
		delete(s.selfErased, sessionID)
		return false
	}
	return true
}

// validateSessionID rejects IDs that would escape the base directory.
func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.NewValidationError("session ID cannot be empty").WithField("session_id")
	}
	if strings.ContainsAny(sessionID, "/\\") || sessionID == "." || sessionID == ".." {
		return errors.NewValidationError("session ID must not contain path separators").
			WithField("session_id").WithValue(sessionID)
	}
	return nil
}

// atomicWriteFile writes data to a temp file in the target directory,
// fsyncs it, then renames it into place so the target is never seen
// partially written.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
