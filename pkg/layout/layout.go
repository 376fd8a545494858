// Package layout maps stanzas to their location inside the tree.
package layout

import (
	"fmt"
	"path"
	"strings"

	"github.com/djcass44/apt-tree/pkg/control"
	"github.com/djcass44/apt-tree/pkg/index"
)

// MapPath returns the tree-relative manifest path for a stanza.
//
// Sources stanzas land at Directory/<Package>_<Version>.dsc with the
// version taken verbatim (epoch and revision included). Packages stanzas
// use their Filename field as-is, which already carries the pool prefix.
func MapPath(s control.Stanza, kind index.Kind) (string, error) {
	var p string
	switch kind {
	case index.Sources:
		dir, err := s.Required("Directory")
		if err != nil {
			return "", err
		}
		pkg, err := s.Package()
		if err != nil {
			return "", err
		}
		ver, err := s.Version()
		if err != nil {
			return "", err
		}
		p = dir + "/" + pkg + "_" + ver + ".dsc"
	case index.Packages:
		filename, err := s.Required("Filename")
		if err != nil {
			return "", err
		}
		p = filename
	default:
		return "", fmt.Errorf("unknown index kind: %q", kind)
	}
	if !safe(p) {
		return "", fmt.Errorf("stanza %q maps to unsafe path %q", s.Key(), p)
	}
	return p, nil
}

// Matches reports whether a tree-relative path belongs to the manifest
// region of the given kind.
func Matches(p string, kind index.Kind) bool {
	switch kind {
	case index.Sources:
		return strings.HasSuffix(p, ".dsc")
	case index.Packages:
		return strings.HasSuffix(p, ".deb") || strings.HasSuffix(p, ".udeb")
	}
	return false
}

// safe rejects absolute paths and anything that escapes the tree root.
func safe(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") {
		return false
	}
	clean := path.Clean(p)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}
