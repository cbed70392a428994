package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/scancab/scancab/pkg/scancab"
)

// Backend is an in-memory implementation of the scancab.BlobStore interface
type Backend struct {
	mu        sync.RWMutex
	blobs     map[string][]byte
	mimeTypes map[string]string
	updated   map[string]time.Time
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		blobs:     make(map[string][]byte),
		mimeTypes: make(map[string]string),
		updated:   make(map[string]time.Time),
	}
}

// Upload stores content directly
func (b *Backend) Upload(ctx context.Context, blobRef string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.blobs[blobRef] = data
	b.updated[blobRef] = time.Now().UTC()
	if _, exists := b.mimeTypes[blobRef]; !exists {
		b.mimeTypes[blobRef] = "application/octet-stream"
	}
	return nil
}

// UploadWithParams stores content with an explicit content type
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params scancab.UploadParams) error {
	if err := b.Upload(ctx, params.BlobRef, reader); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mimeTypes[params.BlobRef] = params.ContentType
	return nil
}

// Download streams the blob's content
func (b *Backend) Download(ctx context.Context, blobRef string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.blobs[blobRef]
	if !exists {
		return nil, scancab.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Meta retrieves metadata for a blob
func (b *Backend) Meta(ctx context.Context, blobRef string) (*scancab.BlobMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.blobs[blobRef]
	if !exists {
		return nil, scancab.ErrBlobNotFound
	}
	return &scancab.BlobMeta{
		Ref:         blobRef,
		Size:        int64(len(data)),
		ContentType: b.mimeTypes[blobRef],
		UpdatedAt:   b.updated[blobRef],
	}, nil
}

// Delete removes a blob. Deleting a missing blob is a no-op.
func (b *Backend) Delete(ctx context.Context, blobRef string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.blobs, blobRef)
	delete(b.mimeTypes, blobRef)
	delete(b.updated, blobRef)
	return nil
}

// ListRefs returns every stored blob ref
func (b *Backend) ListRefs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	refs := make([]string, 0, len(b.blobs))
	for ref := range b.blobs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs, nil
}
