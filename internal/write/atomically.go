// Package write provides atomic file creation: content becomes visible at
// its destination path all at once or not at all.
package write

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
)

// Atomically writes to a temporary file next to dest and renames it into
// place only after fn has finished without error. A reader never observes
// a partially written file.
func Atomically(dest string, fn func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := f.Chmod(0644); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), dest)
}
