// Package control reads and writes RFC822-style Debian control stanzas.
//
// The codec is byte-faithful: field order, name casing and the folding of
// multi-line values all survive a decode/encode round trip unchanged. This
// is what makes the on-disk tree representation diffable by a version
// control system without spurious churn.
package control

import (
	"bytes"
	"strings"
)

// Field is a single "Name: value" entry. Value holds the raw bytes that
// followed the colon, including the conventional leading space and any
// continuation lines joined with their newline and indentation intact.
type Field struct {
	Name  string
	Value string
}

// Stanza is an ordered list of fields describing one package version.
// Field names are unique within a stanza (case-insensitively); the decoder
// rejects input that violates this.
type Stanza []Field

// Get returns the whitespace-trimmed value of the named field. Lookup is
// case-insensitive but the stored name keeps its original casing.
func (s Stanza) Get(name string) (string, bool) {
	for _, f := range s {
		if strings.EqualFold(f.Name, name) {
			return strings.TrimSpace(f.Value), true
		}
	}
	return "", false
}

// Required is Get for fields the caller cannot proceed without. A missing
// field is reported as a MissingFieldError carrying the stanza key.
func (s Stanza) Required(name string) (string, error) {
	v, ok := s.Get(name)
	if !ok {
		return "", &MissingFieldError{Field: name, Stanza: s.Key()}
	}
	return v, nil
}

// Package returns the stanza's Package field.
func (s Stanza) Package() (string, error) {
	return s.Required("Package")
}

// Version returns the stanza's Version field.
func (s Stanza) Version() (string, error) {
	return s.Required("Version")
}

// Key identifies the package version this stanza describes, in the same
// "name=version" form used by selector lines.
func (s Stanza) Key() string {
	p, _ := s.Get("Package")
	v, _ := s.Get("Version")
	return p + "=" + v
}

// Bytes returns the serialized form of the stanza, without a trailing
// blank line.
func (s Stanza) Bytes() []byte {
	var buf bytes.Buffer
	for _, f := range s {
		buf.WriteString(f.Name)
		buf.WriteByte(':')
		buf.WriteString(f.Value)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Equal reports whether two stanzas serialize to the same bytes.
func (s Stanza) Equal(other Stanza) bool {
	return bytes.Equal(s.Bytes(), other.Bytes())
}
