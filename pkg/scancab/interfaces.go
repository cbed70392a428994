package scancab

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for blob storage backends. Blob operations
// are not transactional with the entity Store; Delete must be idempotent so
// the delete paths and the orphan-blob sweep can safely re-run.
type BlobStore interface {
	// Upload stores content under blobRef, overwriting any previous blob.
	Upload(ctx context.Context, blobRef string, reader io.Reader) error

	// UploadWithParams stores content with an explicit content type.
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download streams the blob's content.
	Download(ctx context.Context, blobRef string) (io.ReadCloser, error)

	// Meta retrieves size/type/mtime for a blob. Returns ErrBlobNotFound
	// when the ref resolves to nothing.
	Meta(ctx context.Context, blobRef string) (*BlobMeta, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, blobRef string) error

	// ListRefs returns every blob ref held by the backend. Used only by
	// the orphan-blob sweep; a full scan is acceptable at this scale.
	ListRefs(ctx context.Context) ([]string, error)
}

// BlobMeta contains metadata about a stored blob.
type BlobMeta struct {
	Ref         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}

// UploadParams contains parameters for uploading a blob.
type UploadParams struct {
	BlobRef     string
	ContentType string
}

// Store defines the interface for entity persistence. All records for one
// owner live in a single partition; InTx scopes a transaction to it.
//
// Get/Update/Delete calls that take an owner key reject records belonging to
// a different owner with the corresponding not-found error, so ownership
// checks and existence checks are the same code path.
type Store interface {
	// User operations
	GetUser(ctx context.Context, key string) (*UserInfo, error)
	GetOrCreateUser(ctx context.Context, key string) (*UserInfo, error)
	PutUser(ctx context.Context, user *UserInfo) error

	// Media object operations
	CreateMedia(ctx context.Context, media *MediaObject) error
	GetMedia(ctx context.Context, owner string, id uuid.UUID) (*MediaObject, error)
	UpdateMedia(ctx context.Context, media *MediaObject) error
	DeleteMedia(ctx context.Context, owner string, id uuid.UUID) error
	ListMedia(ctx context.Context, filters MediaListFilters) ([]*MediaObject, error)
	// ListAllMedia spans every owner. Sweep use only.
	ListAllMedia(ctx context.Context) ([]*MediaObject, error)

	// Document operations
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, owner string, id uuid.UUID) (*Document, error)
	UpdateDocument(ctx context.Context, doc *Document) error
	DeleteDocument(ctx context.Context, owner string, id uuid.UUID) error
	ListDocuments(ctx context.Context, filters DocumentListFilters) ([]*Document, error)
	// ListAllDocuments spans every owner. Sweep use only.
	ListAllDocuments(ctx context.Context) ([]*Document, error)

	// InTx runs work as one atomic unit scoped to ownerKey's partition.
	// The Store passed to work is only valid for the duration of the call.
	// All-or-nothing: if work returns an error nothing is committed.
	// Conflicting commits surface as ErrTxConflict.
	InTx(ctx context.Context, ownerKey string, work func(tx Store) error) error
}
