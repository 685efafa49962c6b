package pathspace

import "fmt"

// PathError reports a malformed path passed to Canonicalize.
type PathError struct {
	Path    string
	Segment string
}

func (e *PathError) Error() string {
	if e.Segment != "" {
		return fmt.Sprintf("pathspace: invalid path segment %q in %q", e.Segment, e.Path)
	}
	return fmt.Sprintf("pathspace: invalid path %q", e.Path)
}

func errInvalidPath(path string) error {
	return &PathError{Path: path}
}

func errInvalidPathSubcomponent(segment string) error {
	return &PathError{Segment: segment}
}
