package filesystem

import (
	"path"
	"path/filepath"
	"strings"
)

// SafeJoin joins an untrusted request path onto root. The untrusted part is
// rooted at "/" and cleaned before the join, so ".." segments collapse
// against that synthetic root and the result is always root or a path
// inside it.
func SafeJoin(root, untrusted string) string {
	if filepath.Separator != '/' {
		untrusted = strings.ReplaceAll(untrusted, string(filepath.Separator), "/")
	}
	rooted := path.Clean("/" + untrusted)
	return filepath.Join(root, filepath.FromSlash(rooted))
}

// Within reports whether target is root or lies inside it.
func Within(root, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
