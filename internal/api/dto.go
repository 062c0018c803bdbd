package api

import (
	"github.com/starford/raido/internal/forms"
	"github.com/starford/raido/internal/models"
)

// CollectionListResponse wraps the collection listing.
type CollectionListResponse struct {
	Collections []models.CollectionInfo `json:"collections" validate:"required"`
}

// DraftListResponse wraps the draft listing.
type DraftListResponse struct {
	Drafts []models.DraftMetadata `json:"drafts" validate:"required"`
}

// FormListResponse wraps the open form sessions.
type FormListResponse struct {
	Forms []forms.View `json:"forms" validate:"required"`
	Kinds []string     `json:"kinds" validate:"required"`
}

// OpenFormRequest is the request body for opening a form session.
type OpenFormRequest struct {
	Kind string `json:"kind" example:"purchase_order" validate:"required"`
}

// RestoreResponse reports whether a stored draft was loaded.
type RestoreResponse struct {
	Restored bool       `json:"restored" example:"true"`
	Form     forms.View `json:"form" validate:"required"`
}

// LeaveBlockedResponse is returned when unsaved changes block leaving.
type LeaveBlockedResponse struct {
	Error   string `json:"error" example:"unsaved changes"`
	Message string `json:"message"`
}
