package scancab

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserInfo holds per-user library state. A user's documents and media objects
// all live in the partition identified by Key, so one transaction can touch
// any subset of them but never records of another user.
type UserInfo struct {
	// Key is the stable identity key derived from the login identity,
	// e.g. "user:brad@example.com". Immutable.
	Key string `json:"key"`

	// MediaObjects counts media owned by this user. Maintained
	// incrementally by the create/delete operations of the service.
	MediaObjects int64 `json:"media_objects"`

	// UploadPasswordHash, when set, allows non-interactive uploads
	// authenticated with AuthenticateUpload. bcrypt hash, never the
	// plaintext password.
	UploadPasswordHash string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// MediaObject is one uploaded file (one physical scan page). The raw bytes
// live in the blob store under BlobRef; this record carries duplicate
// metadata for listing and search.
type MediaObject struct {
	ID    uuid.UUID `json:"id"`
	Owner string    `json:"owner"` // UserInfo.Key, immutable after creation

	BlobRef     string    `json:"blob_ref"`
	CreatedAt   time.Time `json:"created_at"`
	ContentType string    `json:"content_type"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`

	// Pixel dimensions when known.
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`

	// DocumentID references the owning document, if any. Invariant:
	// LacksDocument == (DocumentID == nil), always.
	DocumentID    *uuid.UUID `json:"document_id,omitempty"`
	LacksDocument bool       `json:"lacks_document"`
}

// Attached reports whether this media object belongs to a document.
func (m *MediaObject) Attached() bool {
	return m.DocumentID != nil
}

// Document is an ordered grouping of one or more media objects representing
// one logical paper document.
type Document struct {
	ID    uuid.UUID `json:"id"`
	Owner string    `json:"owner"` // UserInfo.Key, immutable

	// Pages holds media object IDs in page order. Every referenced media
	// object is owned by the same owner and points back at this document.
	Pages []uuid.UUID `json:"pages"`

	// Preview holds media object IDs for preview images, e.g. rendered
	// pages when Pages is a single PDF.
	Preview []uuid.UUID `json:"preview,omitempty"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// DocDate is the date on the paper document itself. Invariant:
	// NoDate == (DocDate == nil).
	DocDate *time.Time `json:"doc_date,omitempty"`
	NoDate  bool       `json:"no_date"`

	// DueDate for documents that need action (taxes, bills).
	DueDate *time.Time `json:"due_date,omitempty"`

	// Tags is a set of unique strings. Invariant: NoTags == (len(Tags)==0);
	// NoTags exists so the untagged-documents query stays an indexed filter.
	Tags   []string `json:"tags,omitempty"`
	NoTags bool     `json:"no_tags"`

	// PhysicalLocation records where the paper original is filed.
	PhysicalLocation string `json:"physical_location,omitempty"`

	Starred   bool      `json:"starred,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SomeTitle returns the title, or the tag list as a stand-in when untitled.
func (d *Document) SomeTitle() string {
	if d.Title != "" {
		return d.Title
	}
	if len(d.Tags) > 0 {
		return strings.Join(d.Tags, ", ")
	}
	return ""
}

// HasPage reports whether the given media ID appears in Pages.
func (d *Document) HasPage(id uuid.UUID) bool {
	for _, p := range d.Pages {
		if p == id {
			return true
		}
	}
	return false
}

// DocumentListFilters defines filtering options for listing documents.
type DocumentListFilters struct {
	Owner string

	// Tags, when non-empty, matches documents carrying every listed tag.
	Tags []string

	// Untagged selects documents with NoTags set. Mutually exclusive with
	// Tags; validated by the service.
	Untagged bool

	// DueOnly selects documents with a due date, ordered by it ascending.
	DueOnly bool

	Limit int
}

// MediaListFilters defines filtering options for listing media objects.
type MediaListFilters struct {
	Owner string

	// Unattached selects media with LacksDocument set, creation order.
	Unattached bool

	Limit int
}

// SweepResult reports what a reconciliation sweep did.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}
