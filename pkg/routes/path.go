package routes

import (
	"errors"
	"strings"
)

// Path errors.
var (
	ErrInvalidPath     = errors.New("routes: invalid path")
	ErrBackslashInPath = errors.New("routes: path contains backslash")
	ErrNullByteInPath  = errors.New("routes: path contains null byte")
	ErrPathEscapesRoot = errors.New("routes: path escapes root via ..")
)

// Canonical normalizes a route path:
//   - a leading slash is added, a trailing slash removed (except for "/")
//   - repeated slashes collapse and "." segments are dropped
//   - ".." segments are resolved
//
// Backslashes, NUL bytes, query strings and ".." above the root are rejected.
// The empty path is "/".
func Canonical(p string) (string, error) {
	if p == "" {
		return "/", nil
	}
	switch {
	case strings.ContainsRune(p, '\\'):
		return "", ErrBackslashInPath
	case strings.ContainsRune(p, 0), strings.Contains(strings.ToUpper(p), "%00"):
		return "", ErrNullByteInPath
	case strings.ContainsAny(p, "?#"):
		return "", ErrInvalidPath
	}

	var segs []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segs) == 0 {
				return "", ErrPathEscapesRoot
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, seg)
		}
	}
	return "/" + strings.Join(segs, "/"), nil
}
