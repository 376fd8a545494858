package control

import "fmt"

// MalformedFieldError reports a line that neither opens a new field nor
// continues the previous one.
type MalformedFieldError struct {
	Line   int
	Stanza int
	Text   string
	Reason string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("malformed field at line %d (stanza %d): %s: %q", e.Line, e.Stanza, e.Reason, e.Text)
}

// DanglingContinuationError reports a continuation line that appears before
// any field has been opened in the current stanza.
type DanglingContinuationError struct {
	Line   int
	Stanza int
}

func (e *DanglingContinuationError) Error() string {
	return fmt.Sprintf("continuation line %d (stanza %d) has no field to continue", e.Line, e.Stanza)
}

// MissingFieldError reports a required field absent from a stanza.
type MissingFieldError struct {
	Field  string
	Stanza string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("stanza %q is missing required field %q", e.Stanza, e.Field)
}
