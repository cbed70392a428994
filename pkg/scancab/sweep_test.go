package scancab_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scancab/scancab/pkg/scancab"
	"github.com/scancab/scancab/pkg/scancab/repo/memory"
	memorystorage "github.com/scancab/scancab/pkg/scancab/storage/memory"
)

func newTestSweeper(t *testing.T) (scancab.Service, *scancab.Sweeper, *memory.Store, *memorystorage.Backend) {
	t.Helper()
	store := memory.New()
	blobs := memorystorage.New()
	svc, err := scancab.New(
		scancab.WithStore(store),
		scancab.WithBlobStore(blobs),
	)
	require.NoError(t, err)
	sweeper, err := scancab.NewSweeper(store, blobs, nil)
	require.NoError(t, err)
	_, err = svc.GetOrCreateUser(context.Background(), testOwner)
	require.NoError(t, err)
	return svc, sweeper, store, blobs
}

func TestSweepOrphanMedia(t *testing.T) {
	svc, sweeper, store, _ := newTestSweeper(t)
	ctx := context.Background()

	m1 := uploadMedia(t, svc, "page 1")
	m2 := uploadMedia(t, svc, "page 2")
	doc, err := svc.CreateDocument(ctx, scancab.CreateDocumentRequest{
		Owner:    testOwner,
		MediaIDs: []uuid.UUID{m1.ID, m2.ID},
	})
	require.NoError(t, err)

	// Simulate a crash between the two delete phases: the document record
	// is gone but its pages still claim attachment to it.
	require.NoError(t, store.DeleteDocument(ctx, testOwner, doc.ID))

	result, err := sweeper.SweepOrphanMedia(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 2, result.Deleted)
	assert.Zero(t, result.Failed)

	_, err = store.GetMedia(ctx, testOwner, m1.ID)
	assert.ErrorIs(t, err, scancab.ErrMediaNotFound)
	_, err = store.GetMedia(ctx, testOwner, m2.ID)
	assert.ErrorIs(t, err, scancab.ErrMediaNotFound)

	t.Run("second run deletes nothing", func(t *testing.T) {
		result, err := sweeper.SweepOrphanMedia(ctx)
		require.NoError(t, err)
		assert.Zero(t, result.Deleted)
		assert.Zero(t, result.Failed)
	})
}

func TestSweepOrphanMediaCollectsUnattachedPool(t *testing.T) {
	svc, sweeper, store, _ := newTestSweeper(t)
	ctx := context.Background()

	// Unattached uploads count as unreferenced: the sweep takes them too.
	loose := uploadMedia(t, svc, "not yet grouped")

	result, err := sweeper.SweepOrphanMedia(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	_, err = store.GetMedia(ctx, testOwner, loose.ID)
	assert.ErrorIs(t, err, scancab.ErrMediaNotFound)
}

func TestSweepOrphanMediaKeepsIntactDocuments(t *testing.T) {
	svc, sweeper, store, _ := newTestSweeper(t)
	ctx := context.Background()

	m := uploadMedia(t, svc, "page")
	_, err := svc.CreateDocument(ctx, scancab.CreateDocumentRequest{
		Owner:    testOwner,
		MediaIDs: []uuid.UUID{m.ID},
	})
	require.NoError(t, err)

	result, err := sweeper.SweepOrphanMedia(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)

	_, err = store.GetMedia(ctx, testOwner, m.ID)
	assert.NoError(t, err)
}

func TestSweepOrphanBlobs(t *testing.T) {
	svc, sweeper, _, blobs := newTestSweeper(t)
	ctx := context.Background()

	kept := uploadMedia(t, svc, "registered upload")

	// An upload that stored its blob but never committed the record.
	orphanRef := uuid.New().String()
	require.NoError(t, blobs.Upload(ctx, orphanRef, strings.NewReader("never registered")))

	result, err := sweeper.SweepOrphanBlobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Deleted)
	assert.Zero(t, result.Failed)

	_, err = blobs.Meta(ctx, orphanRef)
	assert.ErrorIs(t, err, scancab.ErrBlobNotFound)
	_, err = blobs.Meta(ctx, kept.BlobRef)
	assert.NoError(t, err)

	t.Run("second run deletes nothing", func(t *testing.T) {
		result, err := sweeper.SweepOrphanBlobs(ctx)
		require.NoError(t, err)
		assert.Zero(t, result.Deleted)
	})
}

func TestNewSweeperValidation(t *testing.T) {
	_, err := scancab.NewSweeper(nil, memorystorage.New(), nil)
	assert.Error(t, err)
	_, err = scancab.NewSweeper(memory.New(), nil, nil)
	assert.Error(t, err)
}
