// Package types holds the shared data model for the task generation pipeline:
// the inbound event description, retrieved knowledge documents, generated
// tasks, and the assembled pipeline result.
package types

import (
	"fmt"
	"strings"
)

// EventInput describes the event the caller wants tasks generated for.
// All fields are optional on the wire; Validate enforces that at least one of
// Name or Description is present. Boolean attributes are pointers so an absent
// flag is distinguishable from an explicit false.
type EventInput struct {
	Name           string `json:"name,omitempty"`
	Description    string `json:"description,omitempty"`
	EventTypeGuess string `json:"event_type_guess,omitempty"`
	Outdoor        *bool  `json:"outdoor,omitempty"`
	HasSponsor     *bool  `json:"has_sponsor,omitempty"`
	HasVIP         *bool  `json:"has_vip,omitempty"`
}

// Normalize trims leading/trailing whitespace from all string fields.
// Must be called before Validate.
func (e *EventInput) Normalize() {
	e.Name = strings.TrimSpace(e.Name)
	e.Description = strings.TrimSpace(e.Description)
	e.EventTypeGuess = strings.TrimSpace(e.EventTypeGuess)
}

// Validate checks the input invariant: at least one of name or description
// must be non-empty.
func (e *EventInput) Validate() error {
	if e.Name == "" && e.Description == "" {
		return fmt.Errorf("at least one of name or description is required")
	}
	return nil
}

// QueryText returns the text used for similarity search: the description when
// present, otherwise the name. Empty when both are empty.
func (e *EventInput) QueryText() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Name
}

// FlagSet reports whether the given pointer flag is present and true.
func FlagSet(b *bool) bool {
	return b != nil && *b
}
