// Package models defines the shared serialisable types for Raido.
package models

import (
	"encoding/json"
	"time"
)

// Draft is a persisted snapshot of in-progress form state. Exactly one
// draft exists per key; the last write wins.
type Draft struct {
	Key      string          `json:"key"`
	Payload  json.RawMessage `json:"payload"`
	Revision string          `json:"revision"`
	SavedAt  time.Time       `json:"saved_at"`
}

// DraftMetadata is the lightweight form returned by list operations.
type DraftMetadata struct {
	Key      string    `json:"key"`
	Revision string    `json:"revision"`
	Size     int       `json:"size"`
	SavedAt  time.Time `json:"saved_at"`
}

// Metadata returns the list view of d.
func (d Draft) Metadata() DraftMetadata {
	return DraftMetadata{Key: d.Key, Revision: d.Revision, Size: len(d.Payload), SavedAt: d.SavedAt}
}
