package scancab

import (
	"time"

	"github.com/google/uuid"
)

// Request/Response DTOs

// CreateDocumentRequest contains parameters for grouping media objects into a
// new document. MediaIDs order is page order.
type CreateDocumentRequest struct {
	Owner       string
	MediaIDs    []uuid.UUID
	Title       string
	Description string
	Tags        []string
}

// RegisterMediaRequest contains parameters for registering an uploaded blob
// as a media object. The blob must already be stored; on failure the caller
// is responsible for deleting it.
type RegisterMediaRequest struct {
	Owner       string
	BlobRef     string
	ContentType string
	Filename    string
	Size        int64
	Width       *int
	Height      *int
	CreatedAt   time.Time

	// SinglePageDoc wraps the media object in a one-page document within
	// the same transaction. Title/Description/Tags apply to that document
	// and are ignored otherwise.
	SinglePageDoc bool
	Title         string
	Description   string
	Tags          []string
}

// UpdateDocumentRequest carries patch semantics: nil pointer fields are left
// untouched. Tags replaces the whole tag set and recomputes NoTags. Setting
// DocDate clears NoDate; ClearDocDate sets it. DueDate/ClearDueDate work the
// same way, independent of NoDate.
type UpdateDocumentRequest struct {
	Owner      string
	DocumentID uuid.UUID

	PhysicalLocation *string
	Title            *string
	Description      *string
	Tags             []string
	HasTags          bool // distinguishes nil Tags from "replace with empty"

	DocDate      *time.Time
	ClearDocDate bool

	DueDate      *time.Time
	ClearDueDate bool

	Starred *bool
}

// ListDocumentsRequest contains parameters for listing a user's documents.
type ListDocumentsRequest struct {
	Owner    string
	Tags     []string
	Untagged bool
	Limit    int
}

// ListMediaRequest contains parameters for listing a user's media objects.
type ListMediaRequest struct {
	Owner      string
	Unattached bool
	Limit      int
}
