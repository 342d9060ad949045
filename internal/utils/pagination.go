// Package utils provides tiny helpers shared across layers.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as an int, falling back to def when s is blank or not
// a number. Query parameters like ?page=2&page_size=50 arrive as strings and
// are frequently absent or garbage; handlers clamp the result afterwards, so
// the fallback here only needs to be a sane starting point.
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
