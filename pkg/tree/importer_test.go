package tree

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/djcass44/apt-tree/pkg/control"
	"github.com/djcass44/apt-tree/pkg/index"
	"github.com/djcass44/apt-tree/pkg/pool"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stanza(t *testing.T, text string) control.Stanza {
	t.Helper()
	s, err := control.DecodeOne(strings.NewReader(text))
	require.NoError(t, err)
	return s
}

func digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func cannaIndex(t *testing.T) *index.Index {
	return &index.Index{Kind: index.Sources, Stanzas: []control.Stanza{
		stanza(t, "Package: canna\nVersion: 3.7p3-25\nDirectory: pool/main/c/canna\n"),
	}}
}

func TestImporter_Import(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))
	root := t.TempDir()
	imp := NewImporter(root)

	report, err := imp.Import(ctx, cannaIndex(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"pool/main/c/canna/canna_3.7p3-25.dsc"}, report.Added)
	assert.False(t, report.Empty())

	got, err := os.ReadFile(filepath.Join(root, "pool/main/c/canna/canna_3.7p3-25.dsc"))
	require.NoError(t, err)
	assert.Equal(t, "Package: canna\nVersion: 3.7p3-25\nDirectory: pool/main/c/canna\n", string(got))

	// no staging residue
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pool", entries[0].Name())
}

func TestImporter_Idempotent(t *testing.T) {
	root := t.TempDir()
	imp := NewImporter(root)

	_, err := imp.Import(context.TODO(), cannaIndex(t))
	require.NoError(t, err)

	report, err := imp.Import(context.TODO(), cannaIndex(t))
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, []string{"pool/main/c/canna/canna_3.7p3-25.dsc"}, report.Unchanged)
}

func TestImporter_Update(t *testing.T) {
	root := t.TempDir()
	imp := NewImporter(root)

	_, err := imp.Import(context.TODO(), cannaIndex(t))
	require.NoError(t, err)

	changed := &index.Index{Kind: index.Sources, Stanzas: []control.Stanza{
		stanza(t, "Package: canna\nVersion: 3.7p3-25\nDirectory: pool/main/c/canna\nMaintainer: someone\n"),
	}}
	report, err := imp.Import(context.TODO(), changed)
	require.NoError(t, err)
	assert.Empty(t, report.Added)
	assert.Equal(t, []string{"pool/main/c/canna/canna_3.7p3-25.dsc"}, report.Updated)
}

func TestImporter_PathCollisionWritesNothing(t *testing.T) {
	root := t.TempDir()
	imp := NewImporter(root)

	// distinct stanzas, same Filename
	idx := &index.Index{Kind: index.Packages, Stanzas: []control.Stanza{
		stanza(t, "Package: a\nVersion: 1\nFilename: pool/same.deb\n"),
		stanza(t, "Package: b\nVersion: 2\nFilename: pool/same.deb\n"),
	}}

	_, err := imp.Import(context.TODO(), idx)
	var collision *PathCollisionError
	require.True(t, errors.As(err, &collision))
	assert.Equal(t, "pool/same.deb", collision.Path)
	assert.Equal(t, "a=1", collision.First)
	assert.Equal(t, "b=2", collision.Second)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImporter_Prune(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))
	root := t.TempDir()
	imp := NewImporter(root, WithPrune())

	both := &index.Index{Kind: index.Sources, Stanzas: []control.Stanza{
		stanza(t, "Package: canna\nVersion: 3.7p3-25\nDirectory: pool/main/c/canna\n"),
		stanza(t, "Package: anthy\nVersion: 1:0.4-2\nDirectory: pool/main/a/anthy\n"),
	}}
	_, err := imp.Import(ctx, both)
	require.NoError(t, err)

	report, err := imp.Import(ctx, cannaIndex(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"pool/main/a/anthy/anthy_1:0.4-2.dsc"}, report.Removed)

	// the orphan and its now-empty directories are gone
	_, err = os.Stat(filepath.Join(root, "pool/main/a"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	// the surviving manifest is untouched
	_, err = os.Stat(filepath.Join(root, "pool/main/c/canna/canna_3.7p3-25.dsc"))
	assert.NoError(t, err)
}

func TestImporter_PoolFromSuppliedArtifacts(t *testing.T) {
	root := t.TempDir()
	store := pool.NewStore(t.TempDir())
	content := "dsc-bytes"

	idx := &index.Index{Kind: index.Sources, Stanzas: []control.Stanza{
		stanza(t, "Package: canna\nVersion: 3.7p3-25\nDirectory: pool/main/c/canna\nChecksums-Sha256:\n "+digest(content)+" 9 canna_3.7p3-25.dsc\n"),
	}}

	imp := NewImporter(root,
		WithPool(store),
		WithArtifacts(map[string][]byte{"pool/main/c/canna/canna_3.7p3-25.dsc": []byte(content)}),
	)
	report, err := imp.Import(context.TODO(), idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pool/main/c/canna/canna_3.7p3-25.dsc"}, report.PoolAdded)
	assert.True(t, store.Has("pool/main/c/canna/canna_3.7p3-25.dsc"))

	// second import: pool entry already present and verified, nothing added
	report, err = imp.Import(context.TODO(), idx)
	require.NoError(t, err)
	assert.True(t, report.Empty())
}

func TestImporter_PoolHashMismatchAborts(t *testing.T) {
	poolRoot := t.TempDir()
	store := pool.NewStore(poolRoot)

	mkIndex := func(content string) *index.Index {
		return &index.Index{Kind: index.Packages, Stanzas: []control.Stanza{
			stanza(t, "Package: canna\nVersion: 3.7p3-25\nFilename: pool/main/c/canna/canna_3.7p3-25_amd64.deb\nSHA256: "+digest(content)+"\n"),
		}}
	}

	first := NewImporter(t.TempDir(), WithPool(store),
		WithArtifacts(map[string][]byte{"pool/main/c/canna/canna_3.7p3-25_amd64.deb": []byte("original")}))
	_, err := first.Import(context.TODO(), mkIndex("original"))
	require.NoError(t, err)

	// same Filename, different declared hash
	second := NewImporter(t.TempDir(), WithPool(store),
		WithArtifacts(map[string][]byte{"pool/main/c/canna/canna_3.7p3-25_amd64.deb": []byte("tampered")}))
	_, err = second.Import(context.TODO(), mkIndex("tampered"))
	var mismatch *pool.HashMismatchError
	require.True(t, errors.As(err, &mismatch))

	// the first pool entry is untouched
	got, err := os.ReadFile(store.Path("pool/main/c/canna/canna_3.7p3-25_amd64.deb"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestImporter_PoolHashMismatchSkipPolicy(t *testing.T) {
	store := pool.NewStore(t.TempDir())
	_, err := store.Add("pool/a.deb", strings.NewReader("original"), "sha256", digest("original"))
	require.NoError(t, err)

	idx := &index.Index{Kind: index.Packages, Stanzas: []control.Stanza{
		stanza(t, "Package: a\nVersion: 1\nFilename: pool/a.deb\nSHA256: "+digest("different")+"\n"),
	}}

	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))
	imp := NewImporter(t.TempDir(), WithPool(store), WithSkipPoolMismatch())
	report, err := imp.Import(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pool/a.deb"}, report.SkippedPool)

	// manifest landed even though the artifact was skipped
	assert.Equal(t, []string{"pool/a.deb"}, report.Added)
}

func TestImporter_PoolMonotonicity(t *testing.T) {
	store := pool.NewStore(t.TempDir())
	root := t.TempDir()

	full := &index.Index{Kind: index.Packages, Stanzas: []control.Stanza{
		stanza(t, "Package: a\nVersion: 1\nFilename: pool/a.deb\nSHA256: "+digest("a")+"\n"),
		stanza(t, "Package: b\nVersion: 1\nFilename: pool/b.deb\nSHA256: "+digest("b")+"\n"),
	}}
	imp := NewImporter(root, WithPool(store), WithPrune(), WithArtifacts(map[string][]byte{
		"pool/a.deb": []byte("a"),
		"pool/b.deb": []byte("b"),
	}))
	_, err := imp.Import(context.TODO(), full)
	require.NoError(t, err)

	// later index drops package b: its manifest goes, its pool entry stays
	reduced := &index.Index{Kind: index.Packages, Stanzas: full.Stanzas[:1]}
	report, err := imp.Import(context.TODO(), reduced)
	require.NoError(t, err)
	assert.Equal(t, []string{"pool/b.deb"}, report.Removed)
	assert.True(t, store.Has("pool/a.deb"))
	assert.True(t, store.Has("pool/b.deb"))
}

func TestImporter_CancelledContextLeavesTreeUntouched(t *testing.T) {
	root := t.TempDir()
	imp := NewImporter(root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := imp.Import(ctx, cannaIndex(t))
	require.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArtifacts(t *testing.T) {
	t.Run("sources prefers sha256 over md5", func(t *testing.T) {
		s := stanza(t, "Package: canna\nVersion: 1\nDirectory: pool/main/c/canna\nFiles:\n aaaa 10 canna_1.dsc\nChecksums-Sha256:\n bbbb 10 canna_1.dsc\n")
		arts, err := Artifacts(s, index.Sources)
		require.NoError(t, err)
		require.Len(t, arts, 1)
		assert.Equal(t, Artifact{Path: "pool/main/c/canna/canna_1.dsc", Algorithm: "sha256", Digest: "bbbb", Size: 10}, arts[0])
	})
	t.Run("sources md5 fallback", func(t *testing.T) {
		s := stanza(t, "Package: canna\nVersion: 1\nDirectory: pool/main/c/canna\nFiles:\n aaaa 10 canna_1.dsc\n cccc 20 canna_1.tar.gz\n")
		arts, err := Artifacts(s, index.Sources)
		require.NoError(t, err)
		require.Len(t, arts, 2)
		assert.Equal(t, "md5", arts[0].Algorithm)
		assert.Equal(t, "pool/main/c/canna/canna_1.tar.gz", arts[1].Path)
	})
	t.Run("packages filename with sha256", func(t *testing.T) {
		s := stanza(t, "Package: a\nVersion: 1\nFilename: pool/a.deb\nSize: 123\nSHA256: dddd\n")
		arts, err := Artifacts(s, index.Packages)
		require.NoError(t, err)
		require.Len(t, arts, 1)
		assert.Equal(t, Artifact{Path: "pool/a.deb", Algorithm: "sha256", Digest: "dddd", Size: 123}, arts[0])
	})
	t.Run("malformed file entry", func(t *testing.T) {
		s := stanza(t, "Package: canna\nVersion: 1\nDirectory: pool\nFiles:\n not enough\n")
		_, err := Artifacts(s, index.Sources)
		assert.Error(t, err)
	})
	t.Run("no file lists", func(t *testing.T) {
		s := stanza(t, "Package: a\nVersion: 1\n")
		arts, err := Artifacts(s, index.Packages)
		require.NoError(t, err)
		assert.Empty(t, arts)
	})
}
