package pool

import "fmt"

// HashMismatchError reports pool content that disagrees with the digest a
// stanza declares for it.
type HashMismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("pool entry %q digest mismatch: want %s, got %s", e.Path, e.Want, e.Got)
}
