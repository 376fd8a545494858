package index

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/djcass44/apt-tree/pkg/control"
	version "github.com/knqyf263/go-deb-version"
)

// Selector matches stanzas by package name and an optional version
// constraint. Accepted forms:
//
//	name
//	name=version
//	name (>= version)
//
// https://www.debian.org/doc/debian-policy/ch-relationships.html
type Selector struct {
	Name       string
	Version    string
	Constraint string
}

// ParseSelector parses a single selector expression.
func ParseSelector(s string) (*Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty selector")
	}
	if name, rest, ok := strings.Cut(s, "("); ok {
		rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), ")"))
		sel := &Selector{Name: strings.TrimSpace(name), Constraint: "="}
		for _, op := range []string{">>", ">=", "<<", "<=", "="} {
			if strings.HasPrefix(rest, op) {
				sel.Constraint = op
				rest = strings.TrimPrefix(rest, op)
				break
			}
		}
		sel.Version = strings.TrimSpace(rest)
		if sel.Name == "" {
			return nil, fmt.Errorf("selector %q has no package name", s)
		}
		if sel.Version == "" {
			return nil, fmt.Errorf("selector %q has no version", s)
		}
		return sel, nil
	}
	if name, ver, ok := strings.Cut(s, "="); ok {
		return &Selector{Name: strings.TrimSpace(name), Version: strings.TrimSpace(ver), Constraint: "="}, nil
	}
	return &Selector{Name: s}, nil
}

// ParseSelectors reads one selector per line, skipping blank lines and
// '#' comments.
func ParseSelectors(r io.Reader) ([]*Selector, error) {
	var out []*Selector
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sel, err := ParseSelector(line)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Matches reports whether the stanza satisfies the selector.
func (sel *Selector) Matches(s control.Stanza) bool {
	name, _ := s.Get("Package")
	if name != sel.Name {
		return false
	}
	if sel.Version == "" {
		return true
	}
	ver, _ := s.Get("Version")
	v1, err := version.NewVersion(ver)
	if err != nil {
		return false
	}
	v2, err := version.NewVersion(sel.Version)
	if err != nil {
		return false
	}
	switch sel.Constraint {
	case ">>":
		return v1.GreaterThan(v2)
	case "<<":
		return v1.LessThan(v2)
	case ">=":
		return v1.GreaterThan(v2) || v1.Equal(v2)
	case "<=":
		return v1.LessThan(v2) || v1.Equal(v2)
	default:
		return v1.Equal(v2)
	}
}

// MatchAny reports whether any selector matches the stanza.
func MatchAny(selectors []*Selector, s control.Stanza) bool {
	for _, sel := range selectors {
		if sel.Matches(s) {
			return true
		}
	}
	return false
}
