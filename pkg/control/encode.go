package control

import "io"

// Write serializes a single stanza, ending with the newline of its final
// field but no blank line.
func Write(w io.Writer, s Stanza) error {
	_, err := w.Write(s.Bytes())
	return err
}

// Encode serializes stanzas separated by single blank lines, the wire form
// of a Packages or Sources file.
func Encode(w io.Writer, stanzas []Stanza) error {
	for i, s := range stanzas {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := Write(w, s); err != nil {
			return err
		}
	}
	return nil
}
