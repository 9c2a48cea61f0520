package services

import (
	"bytes"
	"html"
	"net/url"
	"path"
	"strings"

	"github.com/rootserve/core/internal/domain/entities"
)

// renderIndex builds the HTML listing for a directory. Entries keep the
// order they were enumerated in; directories carry a trailing slash in both
// link and text. Links are absolute so they work whether or not the request
// path ended in a slash.
func renderIndex(dir string, entries []entities.DirEntry) []byte {
	base := path.Clean("/" + dir)
	title := html.EscapeString(base)

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	buf.WriteString("<title>Index of " + title + "</title>\n</head>\n<body>\n")
	buf.WriteString("<h1>Index of " + title + "</h1>\n<ul>\n")

	for _, e := range entries {
		name := e.Name
		href := path.Join(base, name)
		if e.IsDir() {
			name += "/"
			href += "/"
		}
		buf.WriteString(`<li><a href="` + html.EscapeString(escapePath(href)) + `">`)
		buf.WriteString(html.EscapeString(name))
		buf.WriteString("</a></li>\n")
	}

	buf.WriteString("</ul>\n</body>\n</html>\n")
	return buf.Bytes()
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}
