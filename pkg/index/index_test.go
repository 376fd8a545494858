package index

import (
	"bytes"
	"strings"
	"testing"

	"github.com/djcass44/apt-tree/pkg/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stanza(t *testing.T, text string) control.Stanza {
	t.Helper()
	s, err := control.DecodeOne(strings.NewReader(text))
	require.NoError(t, err)
	return s
}

func TestDecode_PlainText(t *testing.T) {
	in := "Package: a\nVersion: 1\n\nPackage: b\nVersion: 2\n"
	idx, err := Decode(strings.NewReader(in), Packages)
	require.NoError(t, err)
	assert.Equal(t, Packages, idx.Kind)
	assert.Len(t, idx.Stanzas, 2)
}

func TestEncodeDecode_Gzip(t *testing.T) {
	idx := &Index{Kind: Sources, Stanzas: []control.Stanza{
		stanza(t, "Package: canna\nVersion: 3.7p3-25\nDirectory: pool/main/c/canna\n"),
	}}

	var buf bytes.Buffer
	require.NoError(t, idx.Encode(&buf))

	// gzip magic
	assert.Equal(t, byte(0x1f), buf.Bytes()[0])
	assert.Equal(t, byte(0x8b), buf.Bytes()[1])

	out, err := Decode(&buf, Sources)
	require.NoError(t, err)
	require.Len(t, out.Stanzas, 1)
	assert.Equal(t, idx.Stanzas[0], out.Stanzas[0])
}

func TestEncode_Deterministic(t *testing.T) {
	build := func(order []string) *Index {
		idx := &Index{Kind: Packages}
		for _, text := range order {
			idx.Stanzas = append(idx.Stanzas, stanza(t, text))
		}
		return idx
	}
	a := "Package: a\nVersion: 1\nFilename: pool/a.deb\n"
	b := "Package: b\nVersion: 1\nFilename: pool/b.deb\n"

	var bufOne, bufTwo bytes.Buffer
	require.NoError(t, build([]string{a, b}).Encode(&bufOne))
	require.NoError(t, build([]string{b, a}).Encode(&bufTwo))

	// same stanza set, different input order, identical bytes
	assert.Equal(t, bufOne.Bytes(), bufTwo.Bytes())
}

func TestSort_DebianVersionSemantics(t *testing.T) {
	var cases = []struct {
		name     string
		versions []string
		want     []string
	}{
		{
			"numeric aware",
			[]string{"1.10", "1.9", "1.2"},
			[]string{"1.2", "1.9", "1.10"},
		},
		{
			"tilde sorts before release",
			[]string{"1.0", "1.0~rc1"},
			[]string{"1.0~rc1", "1.0"},
		},
		{
			"epoch wins",
			[]string{"2.0", "1:1.0"},
			[]string{"2.0", "1:1.0"},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			idx := &Index{Kind: Packages}
			for _, v := range tt.versions {
				idx.Stanzas = append(idx.Stanzas, stanza(t, "Package: p\nVersion: "+v+"\n"))
			}
			idx.Sort()
			var got []string
			for _, s := range idx.Stanzas {
				v, _ := s.Get("Version")
				got = append(got, v)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSort_ByPackageThenVersion(t *testing.T) {
	idx := &Index{Kind: Packages, Stanzas: []control.Stanza{
		stanza(t, "Package: zsh\nVersion: 1\n"),
		stanza(t, "Package: bash\nVersion: 5.2\n"),
		stanza(t, "Package: bash\nVersion: 5.1\n"),
	}}
	idx.Sort()
	assert.Equal(t, "bash=5.1", idx.Stanzas[0].Key())
	assert.Equal(t, "bash=5.2", idx.Stanzas[1].Key())
	assert.Equal(t, "zsh=1", idx.Stanzas[2].Key())
}

func TestKindForArch(t *testing.T) {
	assert.Equal(t, Sources, KindForArch("source"))
	assert.Equal(t, Packages, KindForArch("binary-amd64"))
	assert.Equal(t, "Sources.gz", Sources.Filename())
	assert.Equal(t, "Packages.xz", Packages.FilenameXZ())
}
