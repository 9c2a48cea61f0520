package registry

import (
	"path/filepath"
	"strings"
)

// DefaultMIMETypes is the built-in extension table. Markdown has no entry, so
// rendered .md files are sent with the response default (text/html).
var DefaultMIMETypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"html": "text/html",
	"css":  "text/css",
	"txt":  "text/plain",
	"js":   "text/javascript",
	"json": "application/json",
	"xml":  "application/xml",
	"pdf":  "application/pdf",
}

// MIMETypes is an immutable extension -> content type table.
type MIMETypes struct {
	types map[string]string
}

// NewMIMETypes builds a table from DefaultMIMETypes overlaid with extra.
// Keys of extra may carry a leading dot and any case.
func NewMIMETypes(extra map[string]string) *MIMETypes {
	types := make(map[string]string, len(DefaultMIMETypes)+len(extra))
	for ext, ct := range DefaultMIMETypes {
		types[ext] = ct
	}
	for ext, ct := range extra {
		if key := normalize(ext); key != "" && ct != "" {
			types[key] = ct
		}
	}
	return &MIMETypes{types: types}
}

// Lookup returns the content type for ext. The second result is false for
// unknown or empty extensions.
func (m *MIMETypes) Lookup(ext string) (string, bool) {
	key := normalize(ext)
	if key == "" {
		return "", false
	}
	ct, ok := m.types[key]
	return ct, ok
}

// ForName looks up the content type for a file name or URL path.
func (m *MIMETypes) ForName(name string) (string, bool) {
	return m.Lookup(Extension(name))
}

// Len returns the number of registered extensions.
func (m *MIMETypes) Len() int {
	return len(m.types)
}

// Extension returns the lowercase extension of name without the leading dot,
// or "" when name has none.
func Extension(name string) string {
	return normalize(filepath.Ext(name))
}

func normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
