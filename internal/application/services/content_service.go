package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rootserve/core/internal/adapters/filesystem"
	httpadapter "github.com/rootserve/core/internal/adapters/http"
	"github.com/rootserve/core/internal/domain/entities"
	"github.com/rootserve/core/internal/domain/registry"
	"github.com/rootserve/core/internal/infrastructure/logger"
	"github.com/rootserve/core/internal/ports"
)

// Header is a single response header produced by the pipeline
type Header struct {
	Name  string
	Value string
}

// Outcome is the response the pipeline decided on for one request
type Outcome struct {
	Status  int
	Headers []Header
	Body    []byte
	// Path is the resolved filesystem path, empty for redirects and malformed requests.
	Path string
	Kind entities.EntryKind
	// Err is the cause of a 404 or 500 outcome.
	Err error
}

// ContentOptions holds the immutable inputs of the content pipeline
type ContentOptions struct {
	RootDirectory  string
	Redirects      entities.RedirectTable
	MIMETypes      *registry.MIMETypes
	Postprocessors *registry.Postprocessors
}

// ContentService answers requests from the root directory
type ContentService struct {
	root           string
	redirects      entities.RedirectTable
	mimeTypes      *registry.MIMETypes
	postprocessors *registry.Postprocessors
	fs             ports.FileSystem
	logger         *logger.Logger
}

// NewContentService creates a new content service
func NewContentService(opts ContentOptions, fs ports.FileSystem, logger *logger.Logger) *ContentService {
	if opts.Redirects == nil {
		opts.Redirects = entities.RedirectTable{}
	}
	if opts.MIMETypes == nil {
		opts.MIMETypes = registry.NewMIMETypes(nil)
	}
	if opts.Postprocessors == nil {
		opts.Postprocessors = registry.NewPostprocessors(nil)
	}

	return &ContentService{
		root:           opts.RootDirectory,
		redirects:      opts.Redirects,
		mimeTypes:      opts.MIMETypes,
		postprocessors: opts.Postprocessors,
		fs:             fs,
		logger:         logger,
	}
}

// Serve runs the pipeline for req and sends the single resulting response
// through w. It returns the status that was sent.
func (s *ContentService) Serve(ctx context.Context, req entities.Request, w ports.ResponseWriter) (int, error) {
	out := s.Resolve(ctx, req)

	if err := w.SetStatus(out.Status); err != nil {
		return out.Status, err
	}
	for _, h := range out.Headers {
		if err := w.SetHeader(h.Name, h.Value); err != nil {
			return out.Status, err
		}
	}
	if err := w.Send(out.Body); err != nil {
		return out.Status, fmt.Errorf("failed to send %d response: %w", out.Status, err)
	}
	return out.Status, nil
}

// Resolve runs the pipeline stages in order: redirect, confinement,
// existence, type, then the directory or file branch. It never touches the
// connection.
func (s *ContentService) Resolve(ctx context.Context, req entities.Request) Outcome {
	log := logger.FromContext(ctx, s.logger)

	if out, ok := s.redirect(req); ok {
		log.Debugw("Redirecting", "path", req.Path, "location", out.Headers[0].Value)
		return out
	}

	if req.Path == "" {
		log.Debugw("Malformed request", "method", req.Method)
		return notFound("", entities.ErrMalformedRequest)
	}

	target := requestTarget(req.Path)
	if hasDotDot(target) {
		log.LogSecurityEvent("path_traversal", map[string]interface{}{"path": req.Path})
	}
	fsPath := filesystem.SafeJoin(s.root, target)

	if err := s.fs.Confine(ctx, s.root, fsPath); err != nil {
		if errors.Is(err, entities.ErrUnsupportedEntry) {
			log.LogSecurityEvent("symlink_escape", map[string]interface{}{"path": req.Path, "resolved": fsPath})
		} else {
			log.LogFilesystemError("confine", fsPath, err)
		}
		return internalError(fsPath, entities.EntryOther, err)
	}

	exists, err := s.fs.Exists(ctx, fsPath)
	if err != nil {
		log.LogFilesystemError("exists", fsPath, err)
		return internalError(fsPath, entities.EntryMissing, err)
	}
	if !exists {
		return notFound(fsPath, fmt.Errorf("%s: %w", req.Path, entities.ErrNotFound))
	}

	kind, err := s.fs.Stat(ctx, fsPath)
	if err != nil {
		log.LogFilesystemError("stat", fsPath, err)
		return internalError(fsPath, entities.EntryMissing, err)
	}

	switch kind {
	case entities.EntryDirectory:
		return s.listDirectory(ctx, target, fsPath)
	case entities.EntryFile:
		return s.serveFile(ctx, fsPath)
	default:
		err := fmt.Errorf("%s is a %s entry: %w", fsPath, kind, entities.ErrUnsupportedEntry)
		log.LogFilesystemError("stat", fsPath, err)
		return internalError(fsPath, kind, err)
	}
}

func (s *ContentService) redirect(req entities.Request) (Outcome, bool) {
	location, ok := s.redirects.Lookup(req.Path)
	if !ok {
		return Outcome{}, false
	}

	out := Outcome{
		Status:  httpadapter.StatusPermanentRedirect,
		Headers: []Header{{Name: "Location", Value: location}},
	}
	if ct, ok := s.mimeTypes.ForName(location); ok {
		out.Headers = append(out.Headers, Header{Name: "Content-Type", Value: ct})
	}
	return out, true
}

func (s *ContentService) listDirectory(ctx context.Context, target, fsPath string) Outcome {
	entries, err := s.fs.ReadDir(ctx, fsPath)
	if err != nil {
		logger.FromContext(ctx, s.logger).LogFilesystemError("readdir", fsPath, err)
		return internalError(fsPath, entities.EntryDirectory, err)
	}

	return Outcome{
		Status: httpadapter.StatusOK,
		Body:   renderIndex(target, entries),
		Path:   fsPath,
		Kind:   entities.EntryDirectory,
	}
}

func (s *ContentService) serveFile(ctx context.Context, fsPath string) Outcome {
	data, err := s.fs.ReadFile(ctx, fsPath)
	if err != nil {
		logger.FromContext(ctx, s.logger).LogFilesystemError("read", fsPath, err)
		return internalError(fsPath, entities.EntryFile, err)
	}

	ext := registry.Extension(fsPath)
	body, _ := s.postprocessors.Apply(ext, data)

	out := Outcome{
		Status: httpadapter.StatusOK,
		Body:   body,
		Path:   fsPath,
		Kind:   entities.EntryFile,
	}
	// The content type follows the file's own extension even when the
	// body was transformed.
	if ct, ok := s.mimeTypes.Lookup(ext); ok {
		out.Headers = append(out.Headers, Header{Name: "Content-Type", Value: ct})
	}
	return out
}

func notFound(fsPath string, err error) Outcome {
	return Outcome{
		Status:  httpadapter.StatusNotFound,
		Headers: []Header{{Name: "Content-Type", Value: "text/plain"}},
		Path:    fsPath,
		Kind:    entities.EntryMissing,
		Err:     err,
	}
}

func internalError(fsPath string, kind entities.EntryKind, err error) Outcome {
	return Outcome{
		Status: httpadapter.StatusInternalServerError,
		Path:   fsPath,
		Kind:   kind,
		Err:    err,
	}
}

// IsNotFound reports whether the outcome was caused by a missing entry or a
// malformed request.
func (o Outcome) IsNotFound() bool {
	return errors.Is(o.Err, entities.ErrNotFound) || errors.Is(o.Err, entities.ErrMalformedRequest)
}

// requestTarget strips the query and fragment from a request path and
// percent-decodes it. Undecodable paths are used as sent.
func requestTarget(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if decoded, err := url.PathUnescape(p); err == nil {
		return decoded
	}
	return p
}

func hasDotDot(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
