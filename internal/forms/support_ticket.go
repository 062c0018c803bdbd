package forms

import (
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Ticket priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// SupportTicket is the state of the single-page support ticket form.
type SupportTicket struct {
	Subject     string   `json:"subject"`
	Customer    string   `json:"customer"`
	Priority    string   `json:"priority"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// NewSupportTicket returns a blank ticket at normal priority.
func NewSupportTicket() SupportTicket {
	return SupportTicket{Priority: PriorityNormal, Tags: []string{}}
}

// Apply returns the state after a. The receiver is not modified.
func (st SupportTicket) Apply(a Action) (SupportTicket, error) {
	next := st
	next.Tags = slices.Clone(st.Tags)

	switch a.Type {
	case ActionSetField:
		switch a.Field {
		case "subject":
			next.Subject = a.Value
		case "customer":
			next.Customer = a.Value
		case "priority":
			next.Priority = strings.ToLower(strings.TrimSpace(a.Value))
		case "category":
			next.Category = a.Value
		case "description":
			next.Description = a.Value
		default:
			return st, invalid("unknown ticket field %q", a.Field)
		}

	case ActionAddTag:
		tag := strings.TrimSpace(a.Value)
		if tag == "" {
			return st, invalid("empty tag")
		}
		if !slices.Contains(next.Tags, tag) {
			next.Tags = append(next.Tags, tag)
		}

	case ActionRemoveTag:
		if a.Index < 0 || a.Index >= len(next.Tags) {
			return st, invalid("tag %d out of range", a.Index)
		}
		next.Tags = slices.Delete(next.Tags, a.Index, a.Index+1)

	case ActionReset:
		return NewSupportTicket(), nil

	default:
		return st, invalid("unsupported action %q", a.Type)
	}
	return next, nil
}

// Validate checks the ticket before submission.
func (st SupportTicket) Validate() error {
	return validation.ValidateStruct(&st,
		validation.Field(&st.Subject, validation.Required, validation.Length(3, 120)),
		validation.Field(&st.Customer, validation.Required),
		validation.Field(&st.Priority, validation.Required,
			validation.In(PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent)),
		validation.Field(&st.Category, validation.Required),
		validation.Field(&st.Description, validation.Required, validation.Length(10, 5000)),
		validation.Field(&st.Tags, validation.Length(0, 10)),
	)
}
