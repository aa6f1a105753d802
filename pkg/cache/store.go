package cache

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
)

// Store is the durable key/value backend of a Cache. Keys are slash
// separated relative paths produced by JoinKey or HashKey.
type Store interface {
	// Stat reports the modification time of key and whether it exists.
	Stat(ctx context.Context, key Key) (time.Time, bool, error)
	// Read returns the payload stored under key, or a NotFoundError.
	Read(ctx context.Context, key Key) ([]byte, error)
	// Write replaces the payload stored under key. Readers never observe a
	// partially written entry.
	Write(ctx context.Context, key Key, data []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error
}

var _ Store = (*FileStore)(nil)

// FileStore keeps one file per key under a root directory.
type FileStore struct {
	root string
	ext  string
}

// NewFileStore creates a FileStore rooted at dir. Files are named after
// their key with ext appended (".json", ".yaml").
func NewFileStore(dir, ext string) *FileStore {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &FileStore{root: dir, ext: ext}
}

// Root returns the directory the store writes to.
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the file path backing key.
func (s *FileStore) Path(key Key) (string, error) {
	rel := filepath.FromSlash(string(key))
	if key == "" || filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", errors.NewValidationError("key", key, "must be a non-empty relative path")
	}
	return filepath.Join(s.root, rel+s.ext), nil
}

// Stat implements Store.
func (s *FileStore) Stat(_ context.Context, key Key) (time.Time, bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return time.Time{}, false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, errors.WrapIO("stat", path, err)
	}
	return info.ModTime(), true, nil
}

// Read implements Store.
func (s *FileStore) Read(_ context.Context, key Key) ([]byte, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("cache entry", string(key))
		}
		return nil, errors.WrapIO("read", path, err)
	}
	return data, nil
}

// Write implements Store. The payload goes to a temporary file in the
// target directory first and is renamed into place.
func (s *FileStore) Write(_ context.Context, key Key, data []byte) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("create", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.WrapIO("create", "temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.WrapIO("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("write", path, err)
	}
	if err := os.Chmod(tmpPath, fs.FileMode(constants.FilePermissions)); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("chmod", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("move", path, err)
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, key Key) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WrapIO("delete", path, err)
	}
	return nil
}
