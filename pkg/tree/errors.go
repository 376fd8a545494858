package tree

import "fmt"

// PathCollisionError reports two stanzas of one index mapping to the same
// manifest path. The import that detects it writes nothing.
type PathCollisionError struct {
	Path   string
	First  string
	Second string
}

func (e *PathCollisionError) Error() string {
	return fmt.Sprintf("stanzas %q and %q both map to %q", e.First, e.Second, e.Path)
}

// ExportError reports a manifest file that could not be decoded during
// export.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("exporting %q: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
