package scancab

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrDocumentNotFound indicates a document does not exist under the
	// caller's partition.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrMediaNotFound indicates a media object does not exist under the
	// caller's partition.
	ErrMediaNotFound = errors.New("media object not found")

	// ErrUserNotFound indicates no UserInfo record exists for the key.
	ErrUserNotFound = errors.New("user not found")

	// ErrOwnerNotFound indicates the owner record vanished between the
	// auth check and the transaction commit.
	ErrOwnerNotFound = errors.New("owner record no longer exists")

	// ErrMediaAttached indicates a direct media delete was attempted on a
	// media object that still belongs to a document.
	ErrMediaAttached = errors.New("media object is attached to a document")

	// ErrTxConflict indicates the store gave up retrying a conflicting
	// transaction. The service retries these a bounded number of times.
	ErrTxConflict = errors.New("transaction conflict")

	// ErrBlobNotFound indicates a blob reference resolved to nothing in
	// the blob store.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidPassword indicates an upload-password check failed, either
	// because no password is set or because it did not match.
	ErrInvalidPassword = errors.New("invalid upload password")
)

// ValidationError indicates malformed input: an empty media-id list, a bad
// date format, an invalid tag.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DocumentError represents an error from a document operation
type DocumentError struct {
	Owner      string
	DocumentID uuid.UUID
	Op         string
	Err        error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document operation %s failed for document %s: %v", e.Op, e.DocumentID, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// MediaError represents an error from a media object operation
type MediaError struct {
	Owner   string
	MediaID uuid.UUID
	Op      string
	Err     error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media operation %s failed for media %s: %v", e.Op, e.MediaID, e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// StorageError represents an error from a blob store operation
type StorageError struct {
	BlobRef string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for blob %s: %v", e.Op, e.BlobRef, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
