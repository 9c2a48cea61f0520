package http

import (
	"bytes"
	"strings"

	"github.com/rootserve/core/internal/domain/entities"
)

// ParseRequest extracts the method and path from the request line of data.
// Headers and body are ignored. Missing tokens are left empty; it never fails.
func ParseRequest(data []byte) entities.Request {
	line := data
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	fields := strings.Fields(string(line))

	var req entities.Request
	if len(fields) > 0 {
		req.Method = fields[0]
	}
	if len(fields) > 1 {
		req.Path = fields[1]
	}
	if len(fields) > 2 {
		req.Version = fields[2]
	}
	return req
}
