package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scancab/scancab/pkg/scancab"
	"github.com/scancab/scancab/pkg/scancab/repo/memory"
	memorystorage "github.com/scancab/scancab/pkg/scancab/storage/memory"
)

const testOwner = "user:brad@example.com"

func newTestServer(t *testing.T) (*httptest.Server, scancab.Service) {
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

	r := chi.NewRouter()
	r.Mount("/", NewLibraryHandler(svc, nil).Routes())
	r.Mount("/admin", NewAdminHandler(sweeper, nil).Routes())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set(OwnerHeader, testOwner)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// uploadScan posts a multipart upload with the owner header set.
func uploadScan(t *testing.T, srv *httptest.Server, filename, content string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/media", &buf)
	require.NoError(t, err)
	req.Header.Set(OwnerHeader, testOwner)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestUploadAndListMedia(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := uploadScan(t, srv, "scan1.jpg", "jpeg bytes", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	media := decodeBody[mediaResponse](t, resp)
	assert.True(t, media.LacksDocument)
	assert.Equal(t, "scan1.jpg", media.Filename)

	resp = doJSON(t, http.MethodGet, srv.URL+"/media", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decodeBody[[]mediaResponse](t, resp)
	require.Len(t, listed, 1)
	assert.Equal(t, media.ID, listed[0].ID)
}

func TestUploadRejectsBadDimensions(t *testing.T) {
	srv, svc := newTestServer(t)

	resp := uploadScan(t, srv, "scan.jpg", "bytes", map[string]string{"width": "wide"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Rejected before the blob was stored: nothing to sweep.
	refs, err := svc.Blobs().ListRefs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, refs)

	resp = uploadScan(t, srv, "scan.jpg", "bytes", map[string]string{"width": "640", "height": "480"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	media := decodeBody[mediaResponse](t, resp)
	require.NotNil(t, media.Width)
	assert.Equal(t, 640, *media.Width)
}

func TestUploadMissingIdentity(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "scan.jpg")
	require.NoError(t, err)
	_, err = io.WriteString(fw, "bytes")
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/media", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMachineUpload(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	_, err := svc.GetOrCreateUser(ctx, "user:scanner@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.SetUploadPassword(ctx, "user:scanner@example.com", "scanner-pass"))

	post := func(password string) *http.Response {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("user_email", "scanner@example.com"))
		require.NoError(t, mw.WriteField("password", password))
		fw, err := mw.CreateFormFile("file", "scan.jpg")
		require.NoError(t, err)
		_, err = io.WriteString(fw, "bytes")
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, srv.URL+"/media", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := post("scanner-pass")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = post("wrong")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDocumentLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := uploadScan(t, srv, "p1.jpg", "page one", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	m1 := decodeBody[mediaResponse](t, resp)
	resp = uploadScan(t, srv, "p2.jpg", "page two", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	m2 := decodeBody[mediaResponse](t, resp)

	// Group into a document.
	resp = doJSON(t, http.MethodPost, srv.URL+"/documents", createDocumentRequest{
		MediaIDs: []string{m1.ID, m2.ID},
		Title:    "Lease",
		Tags:     "legal, housing",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	doc := decodeBody[documentResponse](t, resp)
	assert.Equal(t, []string{m1.ID, m2.ID}, doc.Pages)
	assert.Equal(t, []string{"legal", "housing"}, doc.Tags)

	// Fetch it with resolved pages.
	resp = doJSON(t, http.MethodGet, srv.URL+"/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	full := decodeBody[documentWithPagesResponse](t, resp)
	require.Len(t, full.PageObjects, 2)
	assert.False(t, full.PageObjects[0].LacksDocument)

	// Patch: set a due date, clear tags.
	due := "2026-10-01"
	clear := ""
	resp = doJSON(t, http.MethodPatch, srv.URL+"/documents/"+doc.ID, updateDocumentRequest{
		DueDate: &due,
		Tags:    &clear,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	patched := decodeBody[documentResponse](t, resp)
	assert.Equal(t, "2026-10-01", patched.DueDate)
	assert.Empty(t, patched.Tags)

	// Due-only listing finds it.
	resp = doJSON(t, http.MethodGet, srv.URL+"/documents?due=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dueDocs := decodeBody[[]documentResponse](t, resp)
	require.Len(t, dueDocs, 1)

	// Break it apart; pages return to the pool.
	resp = doJSON(t, http.MethodPost, srv.URL+"/documents/"+doc.ID+"/break", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/media", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pool := decodeBody[[]mediaResponse](t, resp)
	assert.Len(t, pool, 2)
}

func TestDeleteDocumentCascades(t *testing.T) {
	srv, svc := newTestServer(t)

	resp := uploadScan(t, srv, "p1.jpg", "page one", map[string]string{"is_doc": "1", "title": "Receipt"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	media := decodeBody[mediaResponse](t, resp)
	require.NotEmpty(t, media.DocumentID)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/documents/"+media.DocumentID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	_, err := svc.GetMedia(context.Background(), testOwner, uuid.MustParse(media.ID))
	assert.ErrorIs(t, err, scancab.ErrMediaNotFound)

	resp = doJSON(t, http.MethodGet, srv.URL+"/documents/"+media.DocumentID, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteAttachedMediaConflicts(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := uploadScan(t, srv, "p1.jpg", "page", map[string]string{"is_doc": "1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	media := decodeBody[mediaResponse](t, resp)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/media/"+media.ID, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDownloadMediaContent(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := uploadScan(t, srv, "p1.jpg", "the raw scan", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	media := decodeBody[mediaResponse](t, resp)

	resp = doJSON(t, http.MethodGet, srv.URL+"/media/"+media.ID+"/content", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "the raw scan", string(data))
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("unknown document is 404", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/documents/"+uuid.NewString(), nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/documents/not-a-uuid", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty grouping is 400", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/documents", createDocumentRequest{})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing owner header is 401", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/documents", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAdminSweeps(t *testing.T) {
	srv, svc := newTestServer(t)

	// A blob nothing references.
	require.NoError(t, svc.Blobs().Upload(context.Background(), "dangling", strings.NewReader("x")))

	resp := doJSON(t, http.MethodPost, srv.URL+"/admin/sweep/blobs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[sweepResponse](t, resp)
	assert.Equal(t, 1, result.Deleted)

	resp = doJSON(t, http.MethodPost, srv.URL+"/admin/sweep/media", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result = decodeBody[sweepResponse](t, resp)
	assert.Zero(t, result.Deleted)
}
