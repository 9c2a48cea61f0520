package ports

import (
	"context"

	"github.com/rootserve/core/internal/domain/entities"
)

// FileSystem defines the filesystem operations the content pipeline needs.
// Paths are already resolved against the server root.
type FileSystem interface {
	Confine(ctx context.Context, root, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	Stat(ctx context.Context, path string) (entities.EntryKind, error)
	ReadDir(ctx context.Context, path string) ([]entities.DirEntry, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// ResponseWriter accumulates one HTTP response and sends it exactly once.
type ResponseWriter interface {
	SetHeader(name, value string) error
	SetStatus(code int) error
	Send(body []byte) error
}

// ContentService answers a parsed request through w.
// It returns the status code that was sent.
type ContentService interface {
	Serve(ctx context.Context, req entities.Request, w ResponseWriter) (int, error)
}
