package scancab

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service defines the main interface for the scancab library core. Identity
// is always explicit: every operation takes the owner key the presentation
// layer resolved, the core never consults an ambient current user.
type Service interface {
	// User operations
	GetOrCreateUser(ctx context.Context, key string) (*UserInfo, error)
	SetUploadPassword(ctx context.Context, key, password string) error
	AuthenticateUpload(ctx context.Context, key, password string) (*UserInfo, error)

	// Media object operations
	RegisterMedia(ctx context.Context, req RegisterMediaRequest) (*MediaObject, error)
	GetMedia(ctx context.Context, owner string, id uuid.UUID) (*MediaObject, error)
	ListMedia(ctx context.Context, req ListMediaRequest) ([]*MediaObject, error)
	DownloadMedia(ctx context.Context, owner string, id uuid.UUID) (io.ReadCloser, *MediaObject, error)
	DeleteMediaObject(ctx context.Context, owner string, id uuid.UUID) error

	// Document operations
	CreateDocument(ctx context.Context, req CreateDocumentRequest) (*Document, error)
	GetDocument(ctx context.Context, owner string, id uuid.UUID) (*Document, error)
	GetDocumentPages(ctx context.Context, owner string, id uuid.UUID) ([]*MediaObject, error)
	UpdateDocument(ctx context.Context, req UpdateDocumentRequest) (*Document, error)
	BreakDocument(ctx context.Context, owner string, id uuid.UUID) error
	DeleteDocumentAndMedia(ctx context.Context, owner string, id uuid.UUID) error
	ListDocuments(ctx context.Context, req ListDocumentsRequest) ([]*Document, error)
	ListUpcomingDue(ctx context.Context, owner string, limit int) ([]*Document, error)

	// Blobs exposes the blob store for the upload handler, which stores
	// the raw bytes before registering them and cleans up on failure.
	Blobs() BlobStore
}
