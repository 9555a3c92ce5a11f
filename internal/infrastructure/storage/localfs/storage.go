package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/case-analyst/internal/core/domain"
)

const documentExt = ".pdf"

// Storage is a directory on the local filesystem. It lists and opens source
// documents and saves generated files below the same root.
type Storage struct {
	basePath string
}

func New(basePath string) *Storage {
	if basePath == "" {
		basePath = "."
	}
	return &Storage{basePath: filepath.Clean(basePath)}
}

func (s *Storage) Root() string {
	return s.basePath
}

// List returns the PDF files directly inside the root, sorted by name.
// Subdirectories are not descended into.
func (s *Storage) List(ctx context.Context) ([]domain.Document, error) {
	info, err := os.Stat(s.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "list documents", fmt.Errorf("folder %q does not exist", s.basePath))
		}
		return nil, domain.WrapError(domain.ErrIO, "list documents", err)
	}
	if !info.IsDir() {
		return nil, domain.WrapError(domain.ErrNotFound, "list documents", fmt.Errorf("%q is not a directory", s.basePath))
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "list documents", err)
	}

	docs := make([]domain.Document, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(entry.Name()), documentExt) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			return nil, domain.WrapError(domain.ErrIO, "list documents", err)
		}
		docs = append(docs, domain.Document{
			ID:   entry.Name(),
			Path: filepath.Join(s.basePath, entry.Name()),
			Size: fi.Size(),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "open "+key, err)
		}
		return nil, domain.WrapError(domain.ErrIO, "open "+key, err)
	}
	return f, nil
}

// Ensure creates the root if needed and checks that files can be created in it.
func (s *Storage) Ensure() error {
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return domain.WrapError(domain.ErrIO, "create storage dir", err)
	}
	probe, err := os.CreateTemp(s.basePath, ".probe-*")
	if err != nil {
		return domain.WrapError(domain.ErrIO, "storage not writable", err)
	}
	name := probe.Name()
	_ = probe.Close()
	if err := os.Remove(name); err != nil {
		return domain.WrapError(domain.ErrIO, "remove write probe", err)
	}
	return nil
}

// Save writes data to key atomically: readers see either the previous file or
// the complete new one. Missing parent directories are created.
func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.WrapError(domain.ErrIO, "create dir", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return domain.WrapError(domain.ErrIO, "create file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, data); err != nil {
		cleanup()
		return domain.WrapError(domain.ErrIO, "write file", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return domain.WrapError(domain.ErrIO, "sync file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return domain.WrapError(domain.ErrIO, "close file", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return domain.WrapError(domain.ErrIO, "chmod file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return domain.WrapError(domain.ErrIO, "rename file", err)
	}
	return nil
}

func (s *Storage) resolve(key string) (string, error) {
	clean := filepath.FromSlash(key)
	if !filepath.IsLocal(clean) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve key", fmt.Errorf("key %q escapes storage root", key))
	}
	return filepath.Join(s.basePath, clean), nil
}
