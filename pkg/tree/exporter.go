package tree

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/djcass44/apt-tree/pkg/control"
	"github.com/djcass44/apt-tree/pkg/index"
	"github.com/djcass44/apt-tree/pkg/layout"
	"github.com/go-logr/logr"
)

// Exporter reconstructs an index from a tree. It never writes.
type Exporter struct {
	root    string
	lenient bool
}

// ExportOption configures an Exporter.
type ExportOption func(*Exporter)

// WithLenient makes export skip manifests that fail to decode instead of
// aborting, collecting their paths in the result.
func WithLenient() ExportOption {
	return func(e *Exporter) {
		e.lenient = true
	}
}

func NewExporter(root string, opts ...ExportOption) *Exporter {
	e := &Exporter{root: root}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExportResult carries the reconstructed index and, in lenient mode, the
// manifests that were skipped.
type ExportResult struct {
	Index   *index.Index
	Skipped []string
}

// Export walks the tree region for the requested kind and assembles the
// stanzas into a canonically ordered index. The result is independent of
// filesystem traversal order: two trees holding the same stanza set
// encode byte-identically.
func (e *Exporter) Export(ctx context.Context, kind index.Kind) (*ExportResult, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("root", e.root, "kind", kind)

	res := &ExportResult{Index: &index.Index{Kind: kind}}
	if _, err := os.Stat(e.root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// an empty region exports an empty index
			return res, nil
		}
		return nil, err
	}
	err := filepath.WalkDir(e.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if isStaging(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(e.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !layout.Matches(rel, kind) {
			return nil
		}

		s, err := e.readManifest(p)
		if err != nil {
			if e.lenient {
				log.Info("skipping undecodable manifest", "path", rel, "err", err.Error())
				res.Skipped = append(res.Skipped, rel)
				return nil
			}
			return &ExportError{Path: rel, Err: err}
		}
		res.Index.Stanzas = append(res.Index.Stanzas, s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Index.Sort()
	log.V(1).Info("export complete", "stanzas", len(res.Index.Stanzas), "skipped", len(res.Skipped))
	return res, nil
}

func (e *Exporter) readManifest(path string) (control.Stanza, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return control.DecodeOne(f)
}
