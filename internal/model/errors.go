package model

import (
	"fmt"
	"strings"
)

// ValidationError is a local validation failure. It is reported to the user inline and
// never sent to the backend.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Field returns the error for the given field, if any.
func (es ValidationErrors) Field(name string) *ValidationError {
	for _, e := range es {
		if e.Field == name {
			return e
		}
	}
	return nil
}
