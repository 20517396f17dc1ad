package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/seqdb/internal/mmap"
)

// LocalStore implements BlobStore using the local file system.
// Relative names resolve against root; absolute names are used as is.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
// An empty root resolves relative names against the working directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) path(name string) string {
	p := filepath.FromSlash(name)
	if filepath.IsAbs(p) || s.root == "" {
		return p
	}
	return filepath.Join(s.root, p)
}

// LocalPath returns the file system path of name.
func (s *LocalStore) LocalPath(name string) (string, bool) {
	return s.path(name), true
}

// Open opens a blob for reading.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, &os.PathError{Op: "open", Path: name, Err: ErrNotFound}
	}
	return &localBlob{f: f, size: fi.Size()}, nil
}

// List returns the blobs in the directory of prefix whose base name starts
// with the base of prefix. Returned names keep the directory part of prefix.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	dir, base := prefix, ""
	if !strings.HasSuffix(prefix, "/") {
		dir, base = filepath.Split(filepath.FromSlash(prefix))
	}

	entries, err := os.ReadDir(s.path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), base) {
			continue
		}
		names = append(names, filepath.ToSlash(filepath.Join(dir, e.Name())))
	}
	sort.Strings(names)
	return names, nil
}

type localBlob struct {
	f    *os.File
	size int64
}

func (b *localBlob) ReadAt(_ context.Context, p []byte, off int64) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= b.size {
		return 0, io.EOF
	}
	return b.f.ReadAt(p, off)
}

func (b *localBlob) MapRange(offset int64, length int) (*mmap.Mapping, error) {
	return mmap.MapRange(b.f, offset, length)
}

func (b *localBlob) Close() error {
	return b.f.Close()
}

func (b *localBlob) Size() int64 {
	return b.size
}
