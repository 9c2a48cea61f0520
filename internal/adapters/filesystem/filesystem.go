package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/rootserve/core/internal/domain/entities"
)

// FileSystem implements ports.FileSystem on top of an afero.Fs
type FileSystem struct {
	fs afero.Fs
}

// New creates a filesystem adapter over fs
func New(fs afero.Fs) *FileSystem {
	return &FileSystem{fs: fs}
}

// NewOS creates a read-only adapter over the host filesystem
func NewOS() *FileSystem {
	return New(afero.NewReadOnlyFs(afero.NewOsFs()))
}

// Confine fails with entities.ErrUnsupportedEntry when path lies outside
// root or one of its parent directories below root is a symlink. The walk
// stops at the first component that cannot be inspected; the existence and
// type checks that follow report those.
func (f *FileSystem) Confine(ctx context.Context, root, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if !Within(root, path) {
		return fmt.Errorf("%s is outside %s: %w", path, root, entities.ErrUnsupportedEntry)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return nil
	}

	segs := strings.Split(rel, string(filepath.Separator))
	dir := root
	for _, seg := range segs[:len(segs)-1] {
		dir = filepath.Join(dir, seg)
		info, err := f.lstat(dir)
		if err != nil {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%s is reached through symlink %s: %w", path, dir, entities.ErrUnsupportedEntry)
		}
	}
	return nil
}

// Exists reports whether path exists. A dangling symlink counts as missing.
func (f *FileSystem) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ok, err := afero.Exists(f.fs, path)
	if err != nil {
		return false, fmt.Errorf("failed to probe %s: %w", path, err)
	}
	return ok, nil
}

// Stat classifies path without following a final symlink
func (f *FileSystem) Stat(ctx context.Context, path string) (entities.EntryKind, error) {
	if err := ctx.Err(); err != nil {
		return entities.EntryMissing, err
	}

	info, err := f.lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return entities.EntryMissing, fmt.Errorf("%s: %w", path, entities.ErrNotFound)
		}
		return entities.EntryMissing, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return kindOf(info), nil
}

// ReadDir lists the immediate children of path, sorted by name
func (f *FileSystem) ReadDir(ctx context.Context, path string) ([]entities.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(f.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}

	entries := make([]entities.DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entities.DirEntry{
			Name: info.Name(),
			Kind: kindOf(info),
		})
	}
	return entries, nil
}

// ReadFile reads the whole file at path
func (f *FileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (f *FileSystem) lstat(path string) (os.FileInfo, error) {
	if l, ok := f.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return f.fs.Stat(path)
}

func kindOf(info os.FileInfo) entities.EntryKind {
	mode := info.Mode()
	switch {
	case mode.IsDir():
		return entities.EntryDirectory
	case mode.IsRegular():
		return entities.EntryFile
	default:
		return entities.EntryOther
	}
}
