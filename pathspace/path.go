// Package pathspace provides the minimal hierarchical key/value store that
// UndoableSpace overlays with history. Path canonicalization, payload
// serialization and prefix matching belong to the wider PathSpace project;
// this package supplies only the slice of that surface the history engine
// needs to drive against in isolation.
package pathspace

import "strings"

// Split breaks an absolute, slash-separated path into its components.
// "/doc/value" -> ["doc", "value"]. The root path "/" splits to an empty
// slice.
func Split(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Join reassembles path components into an absolute path string.
func Join(components []string) string {
	if len(components) == 0 {
		return "/"
	}
	return "/" + strings.Join(components, "/")
}

// HasPrefix reports whether components starts with the given prefix.
func HasPrefix(components, prefix []string) bool {
	if len(prefix) > len(components) {
		return false
	}
	for i, p := range prefix {
		if components[i] != p {
			return false
		}
	}
	return true
}

// Canonicalize validates and normalizes an absolute path: empty segments
// (double or trailing slashes) are dropped, and "." / ".." segments are
// rejected.
func Canonicalize(path string) (string, []string, error) {
	if path == "" || path[0] != '/' {
		return "", nil, errInvalidPath(path)
	}
	raw := strings.Split(path, "/")
	var components []string
	for _, seg := range raw[1:] {
		if seg == "" {
			continue
		}
		if seg == "." || seg == ".." {
			return "", nil, errInvalidPathSubcomponent(seg)
		}
		components = append(components, seg)
	}
	return Join(components), components, nil
}
