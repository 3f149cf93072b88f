package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/luknerlumina/patientflow/internal/domain/providers"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

// LocalStore keeps snapshots as files in one directory. It is the local-only
// tier used when the shared backend is unavailable.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed
func NewLocalStore(dir string) (providers.SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, key)
	return filepath.Join(s.dir, safe+".json")
}

// Get reads a snapshot file
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NewNotFoundError("snapshot not found: " + key)
	}
	if err != nil {
		return nil, apperrors.NewPersistError("failed to read local snapshot", err)
	}
	return data, nil
}

// Set writes the snapshot through a temp file and rename so readers never see a partial file
func (s *LocalStore) Set(ctx context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return apperrors.NewPersistError("failed to create local snapshot", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.NewPersistError("failed to write local snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.NewPersistError("failed to write local snapshot", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return apperrors.NewPersistError("failed to replace local snapshot", err)
	}
	return nil
}

// Delete removes a snapshot file
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.NewPersistError("failed to delete local snapshot", err)
	}
	return nil
}

// Exists checks if a snapshot file exists
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewPersistError("failed to stat local snapshot", err)
	}
	return true, nil
}
