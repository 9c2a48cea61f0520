// Package markdown renders Markdown source to HTML for the postprocessor
// registry.
package markdown

import (
	md "rsc.io/markdown"

	"github.com/rootserve/core/internal/domain/registry"
)

// Extensions are the file extensions rendered by Render.
var Extensions = []string{"md", "markdown"}

func newParser() *md.Parser {
	return &md.Parser{
		Strikethrough: true,
		TaskListItems: true,
		AutoLinkText:  true,
		Table:         true,
	}
}

// Render converts Markdown source to an HTML fragment. Raw HTML in the
// source is emitted unescaped.
func Render(src []byte) []byte {
	doc := newParser().Parse(string(src))
	return []byte(md.ToHTML(doc))
}

// Postprocessors returns the registry entries served by this package.
func Postprocessors() map[string]registry.Postprocessor {
	procs := make(map[string]registry.Postprocessor, len(Extensions))
	for _, ext := range Extensions {
		procs[ext] = Render
	}
	return procs
}
