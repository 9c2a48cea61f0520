package entities

import (
	"errors"
)

// Common errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnsupportedEntry = errors.New("unsupported filesystem entry kind")
)

// Request is the part of an inbound HTTP request the server acts on.
// Path is client-controlled and must go through the path resolver before
// it touches the filesystem.
type Request struct {
	Method  string
	Path    string
	Version string
}

// RedirectTable maps a request path to the location it permanently moved to.
// Keys are matched exactly: no normalization, no trailing-slash folding.
type RedirectTable map[string]string

// NewRedirectTable copies m so later changes by the caller are not observed.
func NewRedirectTable(m map[string]string) RedirectTable {
	t := make(RedirectTable, len(m))
	for k, v := range m {
		t[k] = v
	}
	return t
}

// Lookup returns the redirect target for path.
func (t RedirectTable) Lookup(path string) (string, bool) {
	target, ok := t[path]
	return target, ok
}

// EntryKind classifies what a resolved path points at.
type EntryKind int

const (
	EntryMissing EntryKind = iota
	EntryFile
	EntryDirectory
	EntryOther
)

func (k EntryKind) String() string {
	switch k {
	case EntryMissing:
		return "missing"
	case EntryFile:
		return "file"
	case EntryDirectory:
		return "directory"
	default:
		return "other"
	}
}

// DirEntry is one child of a listed directory.
type DirEntry struct {
	Name string
	Kind EntryKind
}

// IsDir reports whether the entry is a directory.
func (e DirEntry) IsDir() bool {
	return e.Kind == EntryDirectory
}
