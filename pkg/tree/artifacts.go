package tree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/djcass44/apt-tree/pkg/control"
	"github.com/djcass44/apt-tree/pkg/index"
)

// Artifact is one binary payload referenced by a stanza's file-list
// fields, addressed pool-relative.
type Artifact struct {
	Path      string
	Algorithm string
	Digest    string
	Size      int64
}

// Artifacts extracts the pool entries a stanza references. Sources
// stanzas enumerate them in Checksums-Sha256 (preferred) or Files (md5)
// relative to Directory; Packages stanzas name a single Filename with a
// SHA256 or MD5sum digest. Stanzas without file-list fields reference
// nothing.
func Artifacts(s control.Stanza, kind index.Kind) ([]Artifact, error) {
	switch kind {
	case index.Sources:
		return sourceArtifacts(s)
	case index.Packages:
		return packageArtifacts(s)
	}
	return nil, fmt.Errorf("unknown index kind: %q", kind)
}

func sourceArtifacts(s control.Stanza) ([]Artifact, error) {
	list, alg := "", ""
	if v, ok := s.Get("Checksums-Sha256"); ok {
		list, alg = v, "sha256"
	} else if v, ok := s.Get("Files"); ok {
		list, alg = v, "md5"
	} else {
		return nil, nil
	}

	dir, err := s.Required("Directory")
	if err != nil {
		return nil, err
	}

	var out []Artifact
	for _, line := range strings.Split(list, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("stanza %q: malformed file entry: %q", s.Key(), line)
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stanza %q: malformed file size in %q: %w", s.Key(), line, err)
		}
		out = append(out, Artifact{
			Path:      dir + "/" + fields[2],
			Algorithm: alg,
			Digest:    fields[0],
			Size:      size,
		})
	}
	return out, nil
}

func packageArtifacts(s control.Stanza) ([]Artifact, error) {
	filename, ok := s.Get("Filename")
	if !ok {
		return nil, nil
	}
	art := Artifact{Path: filename}
	if v, ok := s.Get("SHA256"); ok {
		art.Algorithm, art.Digest = "sha256", v
	} else if v, ok := s.Get("MD5sum"); ok {
		art.Algorithm, art.Digest = "md5", v
	}
	if v, ok := s.Get("Size"); ok {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stanza %q: malformed Size: %w", s.Key(), err)
		}
		art.Size = size
	}
	return []Artifact{art}, nil
}
