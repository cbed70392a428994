package scancab

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Sweeper runs the administrator-triggered reconciliation passes that close
// the gaps left by the non-transactional blob store: media records whose
// document vanished mid-delete, and blobs whose media record never landed.
//
// Both passes are full scans and idempotent. They delete only records that
// are provably unreferenced at scan time, so re-running after a race is safe
// and a second back-to-back run deletes nothing.
type Sweeper struct {
	store  Store
	blobs  BlobStore
	logger *slog.Logger
}

// NewSweeper creates a sweeper over the given stores.
func NewSweeper(store Store, blobs BlobStore, logger *slog.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, blobs: blobs, logger: logger}, nil
}

// SweepOrphanMedia deletes every media object not referenced by any
// document's pages or preview. These are leftovers of partial failures,
// typically a crash between the two phases of a document-and-media delete.
//
// Note that the unattached upload pool is, by this definition, orphaned too:
// media waiting to be grouped into a document does not survive the sweep.
// Run it only when the pool is known to be empty.
//
// Records are deleted directly, without the counter-safe media delete path;
// owners' media counts are not decremented. This matches the long-standing
// behavior of the sweep and is a known source of counter drift.
func (s *Sweeper) SweepOrphanMedia(ctx context.Context) (*SweepResult, error) {
	docs, err := s.store.ListAllDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	used := make(map[uuid.UUID]bool)
	for _, doc := range docs {
		for _, pageID := range doc.Pages {
			used[pageID] = true
		}
		for _, previewID := range doc.Preview {
			used[previewID] = true
		}
	}

	media, err := s.store.ListAllMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing media: %w", err)
	}

	result := &SweepResult{Scanned: len(media)}
	for _, m := range media {
		if used[m.ID] {
			continue
		}
		if err := s.store.DeleteMedia(ctx, m.Owner, m.ID); err != nil {
			result.Failed++
			s.logger.Error("orphan media delete failed",
				"owner", m.Owner, "media_id", m.ID, "error", err)
			continue
		}
		result.Deleted++
		s.logger.Info("deleted orphan media",
			"owner", m.Owner, "media_id", m.ID, "blob_ref", m.BlobRef)
	}
	return result, nil
}

// SweepOrphanBlobs deletes every blob in the blob store not referenced by
// any media object. These are leftovers of uploads that failed after the
// blob was stored but before the record committed, and of document deletes
// whose second phase never ran.
func (s *Sweeper) SweepOrphanBlobs(ctx context.Context) (*SweepResult, error) {
	media, err := s.store.ListAllMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing media: %w", err)
	}
	used := make(map[string]bool)
	for _, m := range media {
		used[m.BlobRef] = true
	}

	refs, err := s.blobs.ListRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}

	result := &SweepResult{Scanned: len(refs)}
	for _, ref := range refs {
		if used[ref] {
			continue
		}
		if err := s.blobs.Delete(ctx, ref); err != nil {
			result.Failed++
			s.logger.Error("orphan blob delete failed", "blob_ref", ref, "error", err)
			continue
		}
		result.Deleted++
		s.logger.Info("deleted orphan blob", "blob_ref", ref)
	}
	return result, nil
}
