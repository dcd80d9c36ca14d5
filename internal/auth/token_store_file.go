// auth/token_store_file.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// snapshot is a point-in-time copy of the token map. It is never mutated
// after it has been taken.
type snapshot map[string]TokenRecord

// FileTokenStore keeps tokens in memory and persists the full map to a JSON
// file on a background writer. A crash before the writer flushes loses the
// most recent update; tokens can always be re-obtained by re-authorizing.
type FileTokenStore struct {
	mu     sync.Mutex
	tokens map[string]TokenRecord

	path   string
	logger *logrus.Logger

	pending   chan snapshot
	flushReq  chan chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewFileTokenStore loads path (if it exists) and starts the writer.
// An empty path keeps tokens in memory only.
func NewFileTokenStore(path string, logger *logrus.Logger) *FileTokenStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &FileTokenStore{
		tokens:   make(map[string]TokenRecord),
		path:     path,
		logger:   logger,
		pending:  make(chan snapshot, 1),
		flushReq: make(chan chan struct{}),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	if path == "" {
		close(s.stopped)
		return s
	}

	s.load()
	go s.run()
	return s
}

// SaveToken replaces the record for companyID. The update is visible to
// GetToken immediately; the file write happens later.
func (s *FileTokenStore) SaveToken(_ context.Context, companyID string, token *TokenRecord) error {
	if token == nil {
		return errors.New("token is nil")
	}

	s.mu.Lock()
	s.tokens[companyID] = *token
	if s.path != "" {
		s.schedule(s.snapshotLocked())
	}
	s.mu.Unlock()

	return nil
}

// GetToken returns a copy of the record for companyID
func (s *FileTokenStore) GetToken(_ context.Context, companyID string) (*TokenRecord, error) {
	s.mu.Lock()
	token, ok := s.tokens[companyID]
	s.mu.Unlock()

	if !ok {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

// DeleteToken removes the record for companyID
func (s *FileTokenStore) DeleteToken(_ context.Context, companyID string) error {
	s.mu.Lock()
	delete(s.tokens, companyID)
	if s.path != "" {
		s.schedule(s.snapshotLocked())
	}
	s.mu.Unlock()

	return nil
}

// Companies returns the stored company ids in sorted order
func (s *FileTokenStore) Companies(_ context.Context) ([]string, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.tokens))
	for id := range s.tokens {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids, nil
}

// Flush blocks until every write scheduled before the call has completed
func (s *FileTokenStore) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case s.flushReq <- ack:
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes any pending snapshot and stops the writer
func (s *FileTokenStore) Close() error {
	s.closeOnce.Do(func() {
		if s.path != "" {
			close(s.done)
		}
	})
	<-s.stopped
	return nil
}

func (s *FileTokenStore) snapshotLocked() snapshot {
	snap := make(snapshot, len(s.tokens))
	for id, token := range s.tokens {
		snap[id] = token
	}
	return snap
}

// schedule queues snap for writing, replacing an older queued snapshot.
// Called with s.mu held so queued snapshots keep mutation order.
func (s *FileTokenStore) schedule(snap snapshot) {
	for {
		select {
		case s.pending <- snap:
			return
		default:
		}
		select {
		case <-s.pending:
		default:
		}
	}
}

func (s *FileTokenStore) run() {
	defer close(s.stopped)

	for {
		select {
		case snap := <-s.pending:
			s.write(snap)
		case ack := <-s.flushReq:
			select {
			case snap := <-s.pending:
				s.write(snap)
			default:
			}
			close(ack)
		case <-s.done:
			select {
			case snap := <-s.pending:
				s.write(snap)
			default:
			}
			return
		}
	}
}

func (s *FileTokenStore) write(snap snapshot) {
	if err := writeSnapshot(s.path, snap); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Error("Failed to persist tokens")
		return
	}
	s.logger.WithField("companies", len(snap)).Debug("Persisted tokens")
}

func (s *FileTokenStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.WithError(err).WithField("path", s.path).Warn("Failed to read token file, starting empty")
		}
		return
	}

	var stored map[string]TokenRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Token file is corrupt, starting empty")
		return
	}

	s.mu.Lock()
	for id, token := range stored {
		s.tokens[id] = token
	}
	s.mu.Unlock()

	s.logger.WithField("companies", len(stored)).Info("Loaded tokens from file")
}

func writeSnapshot(path string, snap snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write tokens: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}
