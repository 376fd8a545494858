// Package index reads and writes whole repository index files
// (Packages/Sources), layering compression and canonical ordering over the
// stanza codec.
package index

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/djcass44/apt-tree/pkg/control"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
	"pault.ag/go/debian/version"
)

// Kind discriminates the two index flavours.
type Kind string

const (
	Sources  Kind = "Sources"
	Packages Kind = "Packages"
)

// KindForArch returns the index kind published for an architecture
// directory ("source" carries Sources, everything else Packages).
func KindForArch(arch string) Kind {
	if arch == "source" {
		return Sources
	}
	return Packages
}

// Filename returns the gzip index file name for this kind.
func (k Kind) Filename() string {
	return string(k) + ".gz"
}

// FilenameXZ returns the xz index file name for this kind.
func (k Kind) FilenameXZ() string {
	return string(k) + ".xz"
}

// Index is an ordered collection of stanzas of one kind. Order as decoded
// reflects the upstream file; Sort imposes the canonical order used for
// every encode.
type Index struct {
	Kind    Kind
	Stanzas []control.Stanza
}

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// Decode reads a repository index from r, transparently handling gzip and
// xz compression as well as plain text.
func Decode(r io.Reader, kind Kind) (*Index, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, err
	}

	var plain io.Reader = br
	switch {
	case len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip index: %w", err)
		}
		defer gr.Close()
		plain = gr
	case len(magic) >= 6 && bytes.Equal(magic, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening xz index: %w", err)
		}
		plain = xr
	}

	stanzas, err := control.Decode(plain)
	if err != nil {
		return nil, err
	}
	return &Index{Kind: kind, Stanzas: stanzas}, nil
}

// Encode writes the index in canonical order as deterministic gzip: a
// fixed compression level and an empty header (zero mtime, no name) so
// that encoding the same stanza set twice is byte-identical.
func (i *Index) Encode(w io.Writer) error {
	gw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	if err := i.EncodeText(gw); err != nil {
		return err
	}
	return gw.Close()
}

// EncodeText writes the uncompressed index in canonical order.
func (i *Index) EncodeText(w io.Writer) error {
	i.Sort()
	return control.Encode(w, i.Stanzas)
}

// Sort orders stanzas by package name, breaking ties with Debian version
// comparison rather than a lexical one.
func (i *Index) Sort() {
	sort.SliceStable(i.Stanzas, func(a, b int) bool {
		return Less(i.Stanzas[a], i.Stanzas[b])
	})
}

// Less is the canonical stanza ordering.
func Less(a, b control.Stanza) bool {
	ap, _ := a.Get("Package")
	bp, _ := b.Get("Package")
	if ap != bp {
		return ap < bp
	}
	av, _ := a.Get("Version")
	bv, _ := b.Get("Version")
	return compareVersions(av, bv) < 0
}

// compareVersions applies the Debian version comparison algorithm, falling
// back to a lexical compare for strings that do not parse as versions.
func compareVersions(a, b string) int {
	va, errA := version.Parse(a)
	vb, errB := version.Parse(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return version.Compare(va, vb)
}
