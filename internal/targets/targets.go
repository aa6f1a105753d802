// Package targets reads and writes target id lists.
//
// An ids file holds whitespace separated ids. Lists are deduplicated and
// sorted so the same file always yields the same batch.
package targets

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
)

// Normalize trims, deduplicates and sorts ids. Empty ids are dropped.
func Normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Parse reads ids from r.
func Parse(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		ids = append(ids, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return Normalize(ids), nil
}

// Load reads the ids file at path.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("ids file", path)
		}
		return nil, errors.WrapIO("open", path, err)
	}
	defer func() { _ = f.Close() }()

	ids, err := Parse(f)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	return ids, nil
}

// Save writes ids to path, one per line, replacing the file atomically.
func Save(path string, ids []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("create", dir, err)
	}

	var b strings.Builder
	for _, id := range Normalize(ids) {
		b.WriteString(id)
		b.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(dir, ".ids-*")
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(b.String()); err != nil {
		_ = tmp.Close()
		return errors.WrapIO("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO("write", path, err)
	}
	if err := os.Chmod(tmpName, constants.FilePermissions); err != nil {
		return errors.WrapIO("chmod", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.WrapIO("rename", path, err)
	}
	return nil
}

// Merge combines ids given on the command line with those of an optional
// ids file.
func Merge(args []string, path string) ([]string, error) {
	ids := slices.Clone(args)
	if path != "" {
		fromFile, err := Load(path)
		if err != nil {
			return nil, err
		}
		ids = append(ids, fromFile...)
	}
	return Normalize(ids), nil
}
