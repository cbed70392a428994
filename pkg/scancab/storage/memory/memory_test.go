package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scancab/scancab/pkg/scancab"
)

func TestUploadDownload(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, "blob-1", strings.NewReader("hello")))

	rc, err := b.Download(ctx, "blob-1")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = b.Download(ctx, "missing")
	assert.ErrorIs(t, err, scancab.ErrBlobNotFound)
}

func TestUploadWithParams(t *testing.T) {
	b := New()
	ctx := context.Background()

	err := b.UploadWithParams(ctx, strings.NewReader("jpeg bytes"), scancab.UploadParams{
		BlobRef:     "scan-1",
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)

	meta, err := b.Meta(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", meta.ContentType)
	assert.Equal(t, int64(len("jpeg bytes")), meta.Size)
	assert.False(t, meta.UpdatedAt.IsZero())
}

func TestDeleteIdempotent(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, "blob-1", strings.NewReader("x")))
	require.NoError(t, b.Delete(ctx, "blob-1"))
	require.NoError(t, b.Delete(ctx, "blob-1"))
	require.NoError(t, b.Delete(ctx, "never-existed"))

	_, err := b.Meta(ctx, "blob-1")
	assert.ErrorIs(t, err, scancab.ErrBlobNotFound)
}

func TestListRefs(t *testing.T) {
	b := New()
	ctx := context.Background()

	refs, err := b.ListRefs(ctx)
	require.NoError(t, err)
	assert.Empty(t, refs)

	require.NoError(t, b.Upload(ctx, "b", strings.NewReader("2")))
	require.NoError(t, b.Upload(ctx, "a", strings.NewReader("1")))

	refs, err = b.ListRefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, refs)
}
