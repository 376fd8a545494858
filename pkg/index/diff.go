package index

import (
	"sort"

	"github.com/djcass44/apt-tree/pkg/control"
	"golang.org/x/exp/maps"
)

// Changeset is the difference between two indices, keyed by package name
// and version.
type Changeset struct {
	Added    []control.Stanza
	Removed  []control.Stanza
	Modified []Modification
}

// Modification is a stanza whose key exists on both sides with different
// content.
type Modification struct {
	Before control.Stanza
	After  control.Stanza
}

// Empty reports whether the two indices were identical.
func (c *Changeset) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

type key struct {
	pkg     string
	version string
}

func keyOf(s control.Stanza) key {
	p, _ := s.Get("Package")
	v, _ := s.Get("Version")
	return key{pkg: p, version: v}
}

// Diff compares two indices. It is pure: neither input is mutated and no
// I/O happens. Diff(a, b) is the exact mirror of Diff(b, a).
func Diff(a, b *Index) *Changeset {
	byKeyA := make(map[key]control.Stanza, len(a.Stanzas))
	for _, s := range a.Stanzas {
		byKeyA[keyOf(s)] = s
	}
	byKeyB := make(map[key]control.Stanza, len(b.Stanzas))
	for _, s := range b.Stanzas {
		byKeyB[keyOf(s)] = s
	}

	cs := &Changeset{}
	for _, k := range sortedKeys(byKeyB) {
		sb := byKeyB[k]
		sa, ok := byKeyA[k]
		if !ok {
			cs.Added = append(cs.Added, sb)
			continue
		}
		if !sa.Equal(sb) {
			cs.Modified = append(cs.Modified, Modification{Before: sa, After: sb})
		}
	}
	for _, k := range sortedKeys(byKeyA) {
		if _, ok := byKeyB[k]; !ok {
			cs.Removed = append(cs.Removed, byKeyA[k])
		}
	}
	return cs
}

// sortedKeys orders keys the same way the canonical stanza ordering would,
// so changesets are deterministic regardless of input order.
func sortedKeys(m map[key]control.Stanza) []key {
	keys := maps.Keys(m)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].pkg != keys[j].pkg {
			return keys[i].pkg < keys[j].pkg
		}
		return compareVersions(keys[i].version, keys[j].version) < 0
	})
	return keys
}
