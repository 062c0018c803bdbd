// Package forms holds the editable form states, their pure reducers and the
// Workspace that autosaves open form sessions as drafts.
package forms

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAction is returned by reducers for malformed actions.
var ErrInvalidAction = errors.New("invalid action")

// ErrInvalidForm is returned by Submit when the state fails validation.
var ErrInvalidForm = errors.New("invalid form")

// Action types understood by the reducers.
const (
	ActionSetField     = "set_field"
	ActionAddLine      = "add_line"
	ActionRemoveLine   = "remove_line"
	ActionSetLineField = "set_line_field"
	ActionNextStep     = "next_step"
	ActionPrevStep     = "prev_step"
	ActionGoToStep     = "go_to_step"
	ActionAddTag       = "add_tag"
	ActionRemoveTag    = "remove_tag"
	ActionReset        = "reset"
)

// Action is one user edit. Line addresses a purchase order line and Index a
// ticket tag; both are zero-based.
type Action struct {
	Type  string `json:"type"`
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
	Line  int    `json:"line,omitempty"`
	Index int    `json:"index,omitempty"`
}

// Form is an editable state with a pure reducer.
type Form[S any] interface {
	Apply(a Action) (S, error)
	Validate() error
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, fmt.Sprintf(format, args...))
}

func parseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, invalid("quantity %q is not a whole number", s)
	}
	return n, nil
}

func parsePrice(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, invalid("unit price %q is not a number", s)
	}
	return f, nil
}
