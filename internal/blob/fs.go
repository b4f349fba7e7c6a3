package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

var _ Store = (*FSStore)(nil)

// FSStore keeps each blob as a plain file at <root>/<entryID>/<fileID>.
type FSStore struct {
	root string
}

// NewFSStore prepares root for use.
func NewFSStore(root string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// Path returns where the blob for (entryID, fileID) lives.
func (s *FSStore) Path(entryID, fileID string) (string, error) {
	if err := validateKey(entryID, fileID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, entryID, fileID), nil
}

func (s *FSStore) Append(ctx context.Context, entryID, fileID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.Path(entryID, fileID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create entry dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open blob: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("append blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	return nil
}

func (s *FSStore) Open(ctx context.Context, entryID, fileID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.Path(entryID, fileID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *FSStore) Remove(ctx context.Context, entryID, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.Path(entryID, fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("remove blob: %w", err)
	}
	// fails harmlessly while siblings remain
	_ = os.Remove(filepath.Dir(path))
	return nil
}

func (s *FSStore) RemoveEntry(ctx context.Context, entryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(entryID); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, entryID)); err != nil {
		return fmt.Errorf("remove entry blobs: %w", err)
	}
	return nil
}

// Ping verifies the root directory is still there.
func (s *FSStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("stat blob dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blob dir %s is not a directory", s.root)
	}
	return nil
}
