// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package anomaly

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrModelNotFound indicates that no persisted model exists for the organization.
var ErrModelNotFound = errors.New("no persisted model for organization")

// ModelStore persists serialized models keyed by organization id.
// The in-memory registry stays authoritative; store failures are survivable.
type ModelStore interface {
	// Load returns the persisted model blob for the organization.
	// Returns ErrModelNotFound if none exists.
	Load(ctx context.Context, orgID string) ([]byte, error)

	// Save persists the model blob for the organization, replacing any previous one.
	Save(ctx context.Context, orgID string, blob []byte) error
}

// MemoryStore is a ModelStore holding blobs in process memory, for tests
// and deployments that do not need model survival across restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory model store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, orgID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[orgID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotFound, orgID)
	}
	copied := make([]byte, len(blob))
	copy(copied, blob)
	return copied, nil
}

func (s *MemoryStore) Save(ctx context.Context, orgID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(blob))
	copy(copied, blob)
	s.blobs[orgID] = copied
	return nil
}

// FileStore is a ModelStore writing one file per organization under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed model store rooted at the given directory.
// The directory is created if missing.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Load(ctx context.Context, orgID string) ([]byte, error) {
	blob, err := os.ReadFile(s.path(orgID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrModelNotFound, orgID)
		}
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return blob, nil
}

func (s *FileStore) Save(ctx context.Context, orgID string, blob []byte) error {
	if err := os.WriteFile(s.path(orgID), blob, 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return nil
}

func (s *FileStore) path(orgID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("if_%s.gob", sanitizeOrgID(orgID)))
}

// sanitizeOrgID keeps alphanumerics, dashes and underscores so any
// organization id maps to a safe file name.
func sanitizeOrgID(orgID string) string {
	var sb strings.Builder
	for _, r := range orgID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
