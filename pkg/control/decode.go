package control

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxLine bounds a single control line. Descriptions in real indices run
// long but nowhere near this.
const maxLine = 1024 * 1024

// Decoder reads stanzas from a control file one at a time.
type Decoder struct {
	s      *bufio.Scanner
	line   int
	stanza int
}

func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxLine)
	return &Decoder{s: s}
}

// Next returns the next stanza, or io.EOF once the input is exhausted.
// A truncated final stanza with no terminating blank line is still
// returned; real index files frequently end that way.
func (d *Decoder) Next() (Stanza, error) {
	var stanza Stanza
	for d.s.Scan() {
		d.line++
		line := d.s.Text()
		if strings.TrimSpace(line) == "" {
			if len(stanza) == 0 {
				continue // leading or repeated blank line
			}
			d.stanza++
			return stanza, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(stanza) == 0 {
				return nil, &DanglingContinuationError{Line: d.line, Stanza: d.stanza}
			}
			stanza[len(stanza)-1].Value += "\n" + line
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return nil, &MalformedFieldError{Line: d.line, Stanza: d.stanza, Text: line, Reason: "no field separator"}
		}
		name := line[:idx]
		if strings.ContainsAny(name, " \t") {
			return nil, &MalformedFieldError{Line: d.line, Stanza: d.stanza, Text: line, Reason: "whitespace in field name"}
		}
		if _, ok := stanza.Get(name); ok {
			return nil, &MalformedFieldError{Line: d.line, Stanza: d.stanza, Text: line, Reason: "duplicate field"}
		}
		stanza = append(stanza, Field{Name: name, Value: line[idx+1:]})
	}
	if err := d.s.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &MalformedFieldError{Line: d.line + 1, Stanza: d.stanza, Reason: "line exceeds maximum length"}
		}
		return nil, err
	}
	if len(stanza) > 0 {
		d.stanza++
		return stanza, nil
	}
	return nil, io.EOF
}

// Decode reads every stanza from r.
func Decode(r io.Reader) ([]Stanza, error) {
	d := NewDecoder(r)
	var out []Stanza
	for {
		s, err := d.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
}

// DecodeOne reads r expecting exactly one stanza, the shape of a manifest
// file inside the tree.
func DecodeOne(r io.Reader) (Stanza, error) {
	stanzas, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if len(stanzas) != 1 {
		return nil, fmt.Errorf("expected exactly one stanza, found %d", len(stanzas))
	}
	return stanzas[0], nil
}
