package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/scancab/scancab/pkg/scancab"
)

// OwnerHeader names the request header carrying the authenticated owner key.
// The auth layer in front of this service is expected to set it; machine
// uploads may instead authenticate with user_email/password form fields.
const OwnerHeader = "X-Scancab-Owner"

// LibraryHandler handles HTTP requests for the document/media library
type LibraryHandler struct {
	service scancab.Service
	logger  *slog.Logger
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(service scancab.Service, logger *slog.Logger) *LibraryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LibraryHandler{service: service, logger: logger}
}

// Routes returns the routes for the library
func (h *LibraryHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/documents", h.CreateDocument)
	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/{id}", h.GetDocument)
	r.Patch("/documents/{id}", h.UpdateDocument)
	r.Post("/documents/{id}/break", h.BreakDocument)
	r.Delete("/documents/{id}", h.DeleteDocument)

	r.Post("/media", h.UploadMedia)
	r.Get("/media", h.ListMedia)
	r.Get("/media/{id}", h.GetMedia)
	r.Get("/media/{id}/content", h.DownloadMedia)
	r.Delete("/media/{id}", h.DeleteMedia)

	return r
}

// owner resolves the owner key for a request, lazily creating the user
// record the way the original first-login flow does.
func (h *LibraryHandler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.Header.Get(OwnerHeader)
	if key == "" {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, errorResponse{Error: "missing owner identity"})
		return "", false
	}
	if _, err := h.service.GetOrCreateUser(r.Context(), key); err != nil {
		writeError(w, r, err)
		return "", false
	}
	return key, true
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// documentResponse is the response body for a document
type documentResponse struct {
	ID               string    `json:"id"`
	Pages            []string  `json:"pages"`
	Title            string    `json:"title,omitempty"`
	Description      string    `json:"description,omitempty"`
	Tags             []string  `json:"tags"`
	DocDate          string    `json:"doc_date,omitempty"`
	DueDate          string    `json:"due_date,omitempty"`
	PhysicalLocation string    `json:"physical_location,omitempty"`
	Starred          bool      `json:"starred,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toDocumentResponse(doc *scancab.Document) documentResponse {
	resp := documentResponse{
		ID:               doc.ID.String(),
		Pages:            make([]string, 0, len(doc.Pages)),
		Title:            doc.Title,
		Description:      doc.Description,
		Tags:             doc.Tags,
		PhysicalLocation: doc.PhysicalLocation,
		Starred:          doc.Starred,
		CreatedAt:        doc.CreatedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	for _, p := range doc.Pages {
		resp.Pages = append(resp.Pages, p.String())
	}
	if doc.DocDate != nil {
		resp.DocDate = doc.DocDate.Format(scancab.DateLayout)
	}
	if doc.DueDate != nil {
		resp.DueDate = doc.DueDate.Format(scancab.DateLayout)
	}
	return resp
}

// mediaResponse is the response body for a media object
type mediaResponse struct {
	ID            string    `json:"id"`
	ContentType   string    `json:"content_type"`
	Filename      string    `json:"filename"`
	Size          int64     `json:"size"`
	Width         *int      `json:"width,omitempty"`
	Height        *int      `json:"height,omitempty"`
	DocumentID    string    `json:"document_id,omitempty"`
	LacksDocument bool      `json:"lacks_document"`
	CreatedAt     time.Time `json:"created_at"`
}

func toMediaResponse(media *scancab.MediaObject) mediaResponse {
	resp := mediaResponse{
		ID:            media.ID.String(),
		ContentType:   media.ContentType,
		Filename:      media.Filename,
		Size:          media.Size,
		Width:         media.Width,
		Height:        media.Height,
		LacksDocument: media.LacksDocument,
		CreatedAt:     media.CreatedAt,
	}
	if media.DocumentID != nil {
		resp.DocumentID = media.DocumentID.String()
	}
	return resp
}

// createDocumentRequest is the request body for grouping media into a document
type createDocumentRequest struct {
	MediaIDs    []string `json:"media_ids"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        string   `json:"tags"` // comma-separated
}

// CreateDocument groups uploaded media objects into a new document
func (h *LibraryHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "invalid request body"})
		return
	}

	mediaIDs := make([]uuid.UUID, 0, len(req.MediaIDs))
	for _, raw := range req.MediaIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: "invalid media id: " + raw})
			return
		}
		mediaIDs = append(mediaIDs, id)
	}

	doc, err := h.service.CreateDocument(r.Context(), scancab.CreateDocumentRequest{
		Owner:       owner,
		MediaIDs:    mediaIDs,
		Title:       req.Title,
		Description: req.Description,
		Tags:        scancab.ParseTags(req.Tags),
	})
	if err != nil {
		h.logger.Error("create document failed", "owner", owner, "error", err)
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toDocumentResponse(doc))
}

// ListDocuments lists a user's documents, optionally filtered by tags,
// untagged-only, or upcoming-due-only.
func (h *LibraryHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var (
		docs []*scancab.Document
		err  error
	)
	if r.URL.Query().Get("due") == "true" {
		docs, err = h.service.ListUpcomingDue(r.Context(), owner, limit)
	} else {
		docs, err = h.service.ListDocuments(r.Context(), scancab.ListDocumentsRequest{
			Owner:    owner,
			Tags:     scancab.ParseTags(r.URL.Query().Get("tags")),
			Untagged: r.URL.Query().Get("untagged") == "true",
			Limit:    limit,
		})
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toDocumentResponse(doc))
	}
	render.JSON(w, r, resp)
}

// documentWithPagesResponse bundles a document with its resolved pages
type documentWithPagesResponse struct {
	documentResponse
	PageObjects []mediaResponse `json:"page_objects"`
}

// GetDocument returns a document and its pages in page order
func (h *LibraryHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	doc, err := h.service.GetDocument(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pages, err := h.service.GetDocumentPages(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := documentWithPagesResponse{
		documentResponse: toDocumentResponse(doc),
		PageObjects:      make([]mediaResponse, 0, len(pages)),
	}
	for _, media := range pages {
		resp.PageObjects = append(resp.PageObjects, toMediaResponse(media))
	}
	render.JSON(w, r, resp)
}

// updateDocumentRequest carries patch semantics: absent fields are left
// untouched, empty strings clear the corresponding value.
type updateDocumentRequest struct {
	PhysicalLocation *string `json:"physical_location"`
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	Tags             *string `json:"tags"`     // comma-separated; "" clears
	Date             *string `json:"date"`     // YYYY-MM-DD; "" clears
	DueDate          *string `json:"due_date"` // YYYY-MM-DD; "" clears
	Starred          *bool   `json:"starred"`
}

// UpdateDocument edits a document's metadata
func (h *LibraryHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req updateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "invalid request body"})
		return
	}

	update := scancab.UpdateDocumentRequest{
		Owner:            owner,
		DocumentID:       id,
		PhysicalLocation: req.PhysicalLocation,
		Title:            req.Title,
		Description:      req.Description,
		Starred:          req.Starred,
	}
	if req.Tags != nil {
		update.HasTags = true
		update.Tags = scancab.ParseTags(*req.Tags)
	}
	if req.Date != nil {
		date, err := scancab.ParseDate(*req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if date == nil {
			update.ClearDocDate = true
		} else {
			update.DocDate = date
		}
	}
	if req.DueDate != nil {
		due, err := scancab.ParseDate(*req.DueDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if due == nil {
			update.ClearDueDate = true
		} else {
			update.DueDate = due
		}
	}

	doc, err := h.service.UpdateDocument(r.Context(), update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, toDocumentResponse(doc))
}

// BreakDocument dissolves a grouping, returning its pages to the unattached
// pool without touching media or blobs.
func (h *LibraryHandler) BreakDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.BreakDocument(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// DeleteDocument deletes a document together with its pages and blobs
func (h *LibraryHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteDocumentAndMedia(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// maxUploadBytes caps a single uploaded scan.
const maxUploadBytes = 64 << 20

// UploadMedia accepts a multipart upload, stores the blob, and registers the
// media object. Identity comes from the owner header, or for machine uploads
// from user_email/password form fields checked against the upload password.
//
// The blob is stored before the record transaction runs; if registration
// fails the blob is deleted here, and a crash in between leaves an orphan
// blob for the sweep.
func (h *LibraryHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "invalid multipart form"})
		return
	}

	owner := r.Header.Get(OwnerHeader)
	if owner == "" {
		email := r.FormValue("user_email")
		if email == "" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, errorResponse{Error: "missing owner identity"})
			return
		}
		key := "user:" + email
		if _, err := h.service.AuthenticateUpload(r.Context(), key, r.FormValue("password")); err != nil {
			writeError(w, r, err)
			return
		}
		owner = key
	} else if _, err := h.service.GetOrCreateUser(r.Context(), owner); err != nil {
		writeError(w, r, err)
		return
	}

	// Validate dimensions before the blob goes in, so bad input cannot
	// leave an orphan blob behind.
	width, err := formInt(r, "width")
	if err != nil {
		writeError(w, r, err)
		return
	}
	height, err := formInt(r, "height")
	if err != nil {
		writeError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "missing upload file field"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	blobRef := uuid.New().String()
	if err := h.service.Blobs().UploadWithParams(r.Context(), file, scancab.UploadParams{
		BlobRef:     blobRef,
		ContentType: contentType,
	}); err != nil {
		h.logger.Error("blob upload failed", "owner", owner, "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: "upload failed"})
		return
	}

	req := scancab.RegisterMediaRequest{
		Owner:         owner,
		BlobRef:       blobRef,
		ContentType:   contentType,
		Filename:      header.Filename,
		Size:          header.Size,
		Width:         width,
		Height:        height,
		SinglePageDoc: r.FormValue("is_doc") != "" && r.FormValue("is_doc") != "0",
		Title:         r.FormValue("title"),
		Description:   r.FormValue("description"),
		Tags:          scancab.ParseTags(r.FormValue("tags")),
	}

	media, err := h.service.RegisterMedia(r.Context(), req)
	if err != nil {
		// The blob made it in but the record did not; clean it up
		// rather than waiting for the sweep.
		if delErr := h.service.Blobs().Delete(r.Context(), blobRef); delErr != nil {
			h.logger.Error("orphan blob cleanup failed", "blob_ref", blobRef, "error", delErr)
		}
		h.logger.Error("media registration failed", "owner", owner, "error", err)
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toMediaResponse(media))
}

func formInt(r *http.Request, field string) (*int, error) {
	v := r.FormValue(field)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, &scancab.ValidationError{Field: field, Msg: "want an integer, got " + v}
	}
	return &n, nil
}

// ListMedia lists a user's media objects, by default only unattached ones
func (h *LibraryHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	media, err := h.service.ListMedia(r.Context(), scancab.ListMediaRequest{
		Owner:      owner,
		Unattached: r.URL.Query().Get("all") != "true",
		Limit:      limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]mediaResponse, 0, len(media))
	for _, m := range media {
		resp = append(resp, toMediaResponse(m))
	}
	render.JSON(w, r, resp)
}

// GetMedia returns a media object's metadata
func (h *LibraryHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	media, err := h.service.GetMedia(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, toMediaResponse(media))
}

// DownloadMedia streams a media object's blob content
func (h *LibraryHandler) DownloadMedia(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	rc, media, err := h.service.DownloadMedia(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", media.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(media.Size, 10))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("media download interrupted", "owner", owner, "media_id", id, "error", err)
	}
}

// DeleteMedia deletes an unattached media object and its blob
func (h *LibraryHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteMediaObject(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
