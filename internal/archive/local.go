package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Local reads an archive rooted at a directory on disk.
type Local struct {
	root string
}

// NewLocal returns a Local source; root must be an existing directory.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("archive root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("archive root: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("archive root %s is not a directory", abs)
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute archive directory.
func (l *Local) Root() string { return l.root }

func (l *Local) Kind() Kind { return KindLocal }

func (l *Local) Join(parts ...string) string { return path.Join(parts...) }

func (l *Local) LastName(p string) string { return LastName(p) }

// Rel converts an absolute filesystem path under Root into an archive path.
func (l *Local) Rel(abs string) (string, bool) {
	rel, err := filepath.Rel(l.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (l *Local) resolve(p string) (string, error) {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("archive path %q escapes root", p)
		}
	}
	return filepath.Join(l.root, filepath.FromSlash(p)), nil
}

func (l *Local) ListDir(_ context.Context, dir string) ([]string, error) {
	full, err := l.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (l *Local) ReadFile(_ context.Context, p string) ([]byte, error) {
	full, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func (l *Local) Open(_ context.Context, p string) (io.ReadCloser, int64, error) {
	full, err := l.resolve(p)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("archive path %q is a directory", p)
	}
	return f, st.Size(), nil
}
