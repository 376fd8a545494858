// Package tree materializes repository indices as one-manifest-per-stanza
// directory trees and reconstructs indices from them.
package tree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/djcass44/apt-tree/pkg/control"
	"github.com/djcass44/apt-tree/pkg/fetch"
	"github.com/djcass44/apt-tree/pkg/index"
	"github.com/djcass44/apt-tree/pkg/layout"
	"github.com/djcass44/apt-tree/pkg/pool"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Importer writes an index into a destination tree. It is the sole writer
// of that tree for the duration of an Import call; separate trees import
// independently.
type Importer struct {
	root             string
	pool             *pool.Store
	fetcher          fetch.Fetcher
	limit            int
	skipPoolMismatch bool
	prune            bool
	supplied         map[string][]byte
}

// Option configures an Importer.
type Option func(*Importer)

// WithPool attaches the artifact store referenced stanza payloads are kept
// in. Without one, artifact references are ignored.
func WithPool(p *pool.Store) Option {
	return func(i *Importer) {
		i.pool = p
	}
}

// WithFetcher supplies the collaborator used to retrieve artifact bytes
// not already present in the pool.
func WithFetcher(f fetch.Fetcher) Option {
	return func(i *Importer) {
		i.fetcher = f
	}
}

// WithConcurrency bounds parallel per-stanza work.
func WithConcurrency(n int) Option {
	return func(i *Importer) {
		i.limit = n
	}
}

// WithSkipPoolMismatch downgrades pool digest mismatches from aborting the
// import to skipping the affected artifact, surfaced in the report.
func WithSkipPoolMismatch() Option {
	return func(i *Importer) {
		i.skipPoolMismatch = true
	}
}

// WithPrune removes manifests in the destination region that the imported
// index no longer contains. Pool entries are never pruned.
func WithPrune() Option {
	return func(i *Importer) {
		i.prune = true
	}
}

// WithArtifacts supplies artifact bytes by pool path, taking precedence
// over the fetch collaborator.
func WithArtifacts(m map[string][]byte) Option {
	return func(i *Importer) {
		i.supplied = m
	}
}

func NewImporter(root string, opts ...Option) *Importer {
	imp := &Importer{
		root:  root,
		limit: 8,
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// stagedManifest is a manifest write held back until commit.
type stagedManifest struct {
	rel     string
	staged  string
	updated bool
}

// stagedArtifact is a pool entry held back until commit; local points at a
// file whose digest has already been checked.
type stagedArtifact struct {
	art   Artifact
	local string
}

type stanzaResult struct {
	manifest  *stagedManifest
	unchanged string
	pool      []stagedArtifact
	skipped   []string
}

// Import materializes idx into the destination tree. All writes are
// staged and only made visible once every per-stanza operation has
// succeeded; a failure or cancellation beforehand leaves the tree
// untouched. Importing an index the tree already holds yields an empty
// report.
func (imp *Importer) Import(ctx context.Context, idx *index.Index) (*Report, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("root", imp.root, "kind", idx.Kind)

	paths, err := imp.mapAll(idx)
	if err != nil {
		return nil, err
	}

	staging := filepath.Join(imp.root, ".staging-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	results := make([]stanzaResult, len(idx.Stanzas))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(imp.limit)
	for i := range idx.Stanzas {
		eg.Go(func() error {
			return imp.stageStanza(egCtx, idx, i, paths[i], staging, &results[i])
		})
	}
	if err := eg.Wait(); err != nil {
		log.V(1).Info("import failed before commit, tree is unchanged")
		return nil, err
	}

	report := &Report{}
	var manifests []stagedManifest
	var artifacts []stagedArtifact
	for _, res := range results {
		if res.manifest != nil {
			manifests = append(manifests, *res.manifest)
		}
		if res.unchanged != "" {
			report.Unchanged = append(report.Unchanged, res.unchanged)
		}
		artifacts = append(artifacts, res.pool...)
		report.SkippedPool = append(report.SkippedPool, res.skipped...)
	}

	var orphans []string
	if imp.prune {
		expected := make(map[string]struct{}, len(paths))
		for _, p := range paths {
			expected[p] = struct{}{}
		}
		orphans, err = imp.findOrphans(idx.Kind, expected)
		if err != nil {
			return nil, err
		}
	}

	// single commit step: everything staged above becomes visible now
	if err := imp.commit(ctx, manifests, artifacts, orphans, report); err != nil {
		return nil, err
	}
	report.sort()

	log.V(1).Info("import complete",
		"added", len(report.Added), "updated", len(report.Updated),
		"unchanged", len(report.Unchanged), "removed", len(report.Removed),
		"poolAdded", len(report.PoolAdded))
	return report, nil
}

// mapAll computes every manifest path up front and rejects collisions
// before anything is written.
func (imp *Importer) mapAll(idx *index.Index) ([]string, error) {
	paths := make([]string, len(idx.Stanzas))
	seen := make(map[string]int, len(idx.Stanzas))
	for i, s := range idx.Stanzas {
		p, err := layout.MapPath(s, idx.Kind)
		if err != nil {
			return nil, err
		}
		if j, ok := seen[p]; ok {
			return nil, &PathCollisionError{
				Path:   p,
				First:  idx.Stanzas[j].Key(),
				Second: s.Key(),
			}
		}
		seen[p] = i
		paths[i] = p
	}
	return paths, nil
}

func (imp *Importer) stageStanza(ctx context.Context, idx *index.Index, i int, rel, staging string, res *stanzaResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := idx.Stanzas[i]
	data := s.Bytes()

	existing, err := os.ReadFile(filepath.Join(imp.root, filepath.FromSlash(rel)))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := stageFile(staging, i, data, rel, false, res); err != nil {
			return err
		}
	case err != nil:
		return err
	case !bytes.Equal(existing, data):
		if err := stageFile(staging, i, data, rel, true, res); err != nil {
			return err
		}
	default:
		res.unchanged = rel
	}

	return imp.stageArtifacts(ctx, s, idx.Kind, staging, i, res)
}

func stageFile(staging string, i int, data []byte, rel string, updated bool, res *stanzaResult) error {
	staged := filepath.Join(staging, fmt.Sprintf("manifest-%d", i))
	if err := os.WriteFile(staged, data, 0644); err != nil {
		return err
	}
	res.manifest = &stagedManifest{rel: rel, staged: staged, updated: updated}
	return nil
}

func (imp *Importer) stageArtifacts(ctx context.Context, s control.Stanza, kind index.Kind, staging string, i int, res *stanzaResult) error {
	if imp.pool == nil {
		return nil
	}
	log := logr.FromContextOrDiscard(ctx)

	arts, err := Artifacts(s, kind)
	if err != nil {
		return err
	}
	for j, art := range arts {
		if imp.pool.Has(art.Path) {
			// append-only: existing entries are verified, never replaced
			if err := imp.pool.Verify(art.Path, art.Algorithm, art.Digest); err != nil {
				if imp.skippable(err) {
					log.Info("skipping mismatched pool entry", "path", art.Path)
					res.skipped = append(res.skipped, art.Path)
					continue
				}
				return err
			}
			continue
		}

		local, ok, err := imp.materialize(ctx, art, staging, i, j)
		if err != nil {
			if imp.skippable(err) {
				log.Info("skipping mismatched artifact", "path", art.Path)
				res.skipped = append(res.skipped, art.Path)
				continue
			}
			return err
		}
		if !ok {
			log.V(2).Info("no source for artifact, skipping", "path", art.Path)
			continue
		}
		res.pool = append(res.pool, stagedArtifact{art: art, local: local})
	}
	return nil
}

// materialize produces a digest-checked local file for an artifact, from
// caller-supplied bytes or the fetch collaborator. ok is false when
// neither source is available.
func (imp *Importer) materialize(ctx context.Context, art Artifact, staging string, i, j int) (string, bool, error) {
	var local string
	if data, ok := imp.supplied[art.Path]; ok {
		local = filepath.Join(staging, fmt.Sprintf("artifact-%d-%d", i, j))
		if err := os.WriteFile(local, data, 0644); err != nil {
			return "", false, err
		}
	} else if imp.fetcher != nil {
		var err error
		local, err = imp.fetcher.Fetch(ctx, art.Path)
		if err != nil {
			return "", false, err
		}
	} else {
		return "", false, nil
	}

	if art.Digest != "" {
		got, err := pool.FileDigest(local, art.Algorithm)
		if err != nil {
			return "", false, err
		}
		if got != art.Digest {
			return "", false, &pool.HashMismatchError{Path: art.Path, Want: art.Digest, Got: got}
		}
	}
	return local, true, nil
}

func (imp *Importer) skippable(err error) bool {
	var mismatch *pool.HashMismatchError
	return imp.skipPoolMismatch && errors.As(err, &mismatch)
}

// findOrphans lists manifests in the tree region that the new index no
// longer names.
func (imp *Importer) findOrphans(kind index.Kind, expected map[string]struct{}) ([]string, error) {
	var orphans []string
	err := filepath.WalkDir(imp.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if isStaging(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(imp.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !layout.Matches(rel, kind) {
			return nil
		}
		if _, ok := expected[rel]; !ok {
			orphans = append(orphans, rel)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return orphans, err
}

func (imp *Importer) commit(ctx context.Context, manifests []stagedManifest, artifacts []stagedArtifact, orphans []string, report *Report) error {
	for _, a := range artifacts {
		added, err := imp.pool.AddFile(a.art.Path, a.local, a.art.Algorithm, a.art.Digest)
		if err != nil {
			return err
		}
		if added {
			report.PoolAdded = append(report.PoolAdded, a.art.Path)
		}
	}
	for _, m := range manifests {
		dest := filepath.Join(imp.root, filepath.FromSlash(m.rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		if err := os.Rename(m.staged, dest); err != nil {
			return err
		}
		if m.updated {
			report.Updated = append(report.Updated, m.rel)
		} else {
			report.Added = append(report.Added, m.rel)
		}
	}
	log := logr.FromContextOrDiscard(ctx)
	for _, rel := range orphans {
		p := filepath.Join(imp.root, filepath.FromSlash(rel))
		if err := os.Remove(p); err != nil {
			return err
		}
		log.V(2).Info("removed orphaned manifest", "path", rel)
		report.Removed = append(report.Removed, rel)
		imp.pruneEmptyDirs(filepath.Dir(p))
	}
	return nil
}

// pruneEmptyDirs removes now-empty directories up to the tree root.
func (imp *Importer) pruneEmptyDirs(dir string) {
	for dir != imp.root && len(dir) > len(imp.root) {
		if err := os.Remove(dir); err != nil {
			return // not empty, or already gone
		}
		dir = filepath.Dir(dir)
	}
}

func isStaging(name string) bool {
	return len(name) > len(".staging-") && name[:len(".staging-")] == ".staging-"
}
