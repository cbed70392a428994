package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scancab/scancab/pkg/scancab"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return b
}

func TestNewRequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, "scans/2026/page-1", strings.NewReader("page content")))

	rc, err := b.Download(ctx, "scans/2026/page-1")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "page content", string(data))

	_, err = b.Download(ctx, "missing")
	assert.ErrorIs(t, err, scancab.ErrBlobNotFound)
}

func TestMeta(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	content := "<html><body>detectable</body></html>"
	require.NoError(t, b.Upload(ctx, "page.html", strings.NewReader(content)))

	meta, err := b.Meta(ctx, "page.html")
	require.NoError(t, err)
	assert.Equal(t, "page.html", meta.Ref)
	assert.Equal(t, int64(len(content)), meta.Size)
	assert.Contains(t, meta.ContentType, "text/html")

	_, err = b.Meta(ctx, "missing")
	assert.ErrorIs(t, err, scancab.ErrBlobNotFound)
}

func TestDeleteIdempotentAndCleansDirs(t *testing.T) {
	dir := t.TempDir()
	b, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, "a/b/blob", strings.NewReader("x")))
	require.NoError(t, b.Delete(ctx, "a/b/blob"))
	require.NoError(t, b.Delete(ctx, "a/b/blob"))
	require.NoError(t, b.Delete(ctx, "never-existed"))

	// Empty intermediate directories go away with the blob.
	_, err = os.Stat(filepath.Join(dir, "a"))
	assert.True(t, os.IsNotExist(err))
}

func TestListRefs(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, "top", strings.NewReader("1")))
	require.NoError(t, b.Upload(ctx, "nested/deeper/blob", strings.NewReader("2")))

	refs, err := b.ListRefs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"top", "nested/deeper/blob"}, refs)
}
