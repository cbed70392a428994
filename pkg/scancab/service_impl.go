package scancab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// txRetries bounds transparent retries of conflicting transactions before
// the conflict is surfaced to the caller.
const txRetries = 3

// service implements the Service interface
type service struct {
	store  Store
	blobs  BlobStore
	logger *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithStore sets the entity store for the service
func WithStore(store Store) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithBlobStore sets the blob storage backend
func WithBlobStore(blobs BlobStore) Option {
	return func(s *service) {
		s.blobs = blobs
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

func (s *service) Blobs() BlobStore { return s.blobs }

// runInTx executes work atomically in ownerKey's partition, retrying
// transparently on conflict up to txRetries times.
func (s *service) runInTx(ctx context.Context, ownerKey string, work func(tx Store) error) error {
	var err error
	for attempt := 0; attempt < txRetries; attempt++ {
		err = s.store.InTx(ctx, ownerKey, work)
		if !errors.Is(err, ErrTxConflict) {
			return err
		}
		s.logger.Warn("transaction conflict, retrying", "owner", ownerKey, "attempt", attempt+1)
	}
	return err
}

// User operations

func (s *service) GetOrCreateUser(ctx context.Context, key string) (*UserInfo, error) {
	if key == "" {
		return nil, &ValidationError{Field: "key", Msg: "must be non-empty"}
	}
	return s.store.GetOrCreateUser(ctx, key)
}

func (s *service) SetUploadPassword(ctx context.Context, key, password string) error {
	if password == "" {
		return &ValidationError{Field: "password", Msg: "must be non-empty"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing upload password: %w", err)
	}
	return s.runInTx(ctx, key, func(tx Store) error {
		user, err := tx.GetUser(ctx, key)
		if err != nil {
			return err
		}
		user.UploadPasswordHash = string(hash)
		return tx.PutUser(ctx, user)
	})
}

// dummyPasswordHash is a bcrypt hash of an unused throwaway value. Comparing
// against it when an account has no upload password keeps the rejection time
// indistinguishable from a wrong-password rejection.
var dummyPasswordHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

func (s *service) AuthenticateUpload(ctx context.Context, key, password string) (*UserInfo, error) {
	user, err := s.store.GetUser(ctx, key)
	if err != nil {
		return nil, err
	}
	if user.UploadPasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(password))
		return nil, ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.UploadPasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}
	return user, nil
}

// Media object operations

func (s *service) RegisterMedia(ctx context.Context, req RegisterMediaRequest) (*MediaObject, error) {
	if req.BlobRef == "" {
		return nil, &ValidationError{Field: "blob_ref", Msg: "must be non-empty"}
	}
	if err := ValidateTags(req.Tags); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	media := &MediaObject{
		ID:            uuid.New(),
		Owner:         req.Owner,
		BlobRef:       req.BlobRef,
		CreatedAt:     createdAt,
		ContentType:   req.ContentType,
		Filename:      req.Filename,
		Size:          req.Size,
		Width:         req.Width,
		Height:        req.Height,
		LacksDocument: true,
	}

	err := s.runInTx(ctx, req.Owner, func(tx Store) error {
		// The owner may have been deleted between the caller's auth
		// check and this commit.
		owner, err := tx.GetUser(ctx, req.Owner)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return ErrOwnerNotFound
			}
			return err
		}

		if err := tx.CreateMedia(ctx, media); err != nil {
			return err
		}
		owner.MediaObjects++
		if err := tx.PutUser(ctx, owner); err != nil {
			return err
		}

		if !req.SinglePageDoc {
			return nil
		}

		doc := &Document{
			ID:          uuid.New(),
			Owner:       req.Owner,
			Pages:       []uuid.UUID{media.ID},
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			NoTags:      len(req.Tags) == 0,
			NoDate:      true,
			CreatedAt:   now,
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}
		media.DocumentID = &doc.ID
		media.LacksDocument = false
		return tx.UpdateMedia(ctx, media)
	})
	if err != nil {
		return nil, &MediaError{Owner: req.Owner, MediaID: media.ID, Op: "register", Err: err}
	}

	return media, nil
}

func (s *service) GetMedia(ctx context.Context, owner string, id uuid.UUID) (*MediaObject, error) {
	return s.store.GetMedia(ctx, owner, id)
}

func (s *service) ListMedia(ctx context.Context, req ListMediaRequest) ([]*MediaObject, error) {
	return s.store.ListMedia(ctx, MediaListFilters{
		Owner:      req.Owner,
		Unattached: req.Unattached,
		Limit:      req.Limit,
	})
}

func (s *service) DownloadMedia(ctx context.Context, owner string, id uuid.UUID) (io.ReadCloser, *MediaObject, error) {
	media, err := s.store.GetMedia(ctx, owner, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Download(ctx, media.BlobRef)
	if err != nil {
		return nil, nil, &StorageError{BlobRef: media.BlobRef, Op: "download", Err: err}
	}
	return rc, media, nil
}

// DeleteMediaObject removes an unattached media object along with its blob,
// keeping the owner's count in step. Attached media must go through the
// document delete paths so the page linkage stays consistent.
func (s *service) DeleteMediaObject(ctx context.Context, owner string, id uuid.UUID) error {
	media, err := s.store.GetMedia(ctx, owner, id)
	if err != nil {
		return err
	}
	if media.Attached() {
		return &MediaError{Owner: owner, MediaID: id, Op: "delete", Err: ErrMediaAttached}
	}

	// Blob first. Idempotent, and a crash here leaves a record the
	// orphan-media path cannot touch but a re-run of delete can.
	if err := s.blobs.Delete(ctx, media.BlobRef); err != nil {
		return &StorageError{BlobRef: media.BlobRef, Op: "delete", Err: err}
	}

	err = s.runInTx(ctx, owner, func(tx Store) error {
		media, err := tx.GetMedia(ctx, owner, id)
		if err != nil {
			if errors.Is(err, ErrMediaNotFound) {
				return nil // raced with another delete
			}
			return err
		}
		if media.Attached() {
			return ErrMediaAttached
		}
		if err := tx.DeleteMedia(ctx, owner, id); err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, owner)
		if err != nil {
			return err
		}
		user.MediaObjects--
		return tx.PutUser(ctx, user)
	})
	if err != nil {
		return &MediaError{Owner: owner, MediaID: id, Op: "delete", Err: err}
	}
	return nil
}

// Document operations

func (s *service) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*Document, error) {
	if len(req.MediaIDs) == 0 {
		return nil, &ValidationError{Field: "media_ids", Msg: "must list at least one media object"}
	}
	if err := ValidateTags(req.Tags); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:          uuid.New(),
		Owner:       req.Owner,
		Pages:       append([]uuid.UUID(nil), req.MediaIDs...),
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		NoTags:      len(req.Tags) == 0,
		NoDate:      true,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.runInTx(ctx, req.Owner, func(tx Store) error {
		// Verify every page before the first write so a bad ID rolls
		// the whole grouping back.
		pages := make([]*MediaObject, 0, len(req.MediaIDs))
		for _, id := range req.MediaIDs {
			media, err := tx.GetMedia(ctx, req.Owner, id)
			if err != nil {
				return err
			}
			if media.Attached() {
				return ErrMediaAttached
			}
			pages = append(pages, media)
		}

		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}
		for _, media := range pages {
			media.DocumentID = &doc.ID
			media.LacksDocument = false
			if err := tx.UpdateMedia(ctx, media); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, &DocumentError{Owner: req.Owner, DocumentID: doc.ID, Op: "create", Err: err}
	}

	return doc, nil
}

func (s *service) GetDocument(ctx context.Context, owner string, id uuid.UUID) (*Document, error) {
	return s.store.GetDocument(ctx, owner, id)
}

// GetDocumentPages returns the document's media objects in page order. Pages
// whose record has vanished (a sweep racing us) are skipped.
func (s *service) GetDocumentPages(ctx context.Context, owner string, id uuid.UUID) ([]*MediaObject, error) {
	doc, err := s.store.GetDocument(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	pages := make([]*MediaObject, 0, len(doc.Pages))
	for _, pageID := range doc.Pages {
		media, err := s.store.GetMedia(ctx, owner, pageID)
		if err != nil {
			if errors.Is(err, ErrMediaNotFound) {
				continue
			}
			return nil, err
		}
		pages = append(pages, media)
	}
	return pages, nil
}

func (s *service) UpdateDocument(ctx context.Context, req UpdateDocumentRequest) (*Document, error) {
	if req.HasTags {
		if err := ValidateTags(req.Tags); err != nil {
			return nil, err
		}
	}

	var updated *Document
	err := s.runInTx(ctx, req.Owner, func(tx Store) error {
		doc, err := tx.GetDocument(ctx, req.Owner, req.DocumentID)
		if err != nil {
			return err
		}

		if req.PhysicalLocation != nil {
			doc.PhysicalLocation = *req.PhysicalLocation
		}
		if req.Title != nil {
			doc.Title = *req.Title
		}
		if req.Description != nil {
			doc.Description = *req.Description
		}
		if req.HasTags {
			doc.Tags = append([]string(nil), req.Tags...)
			doc.NoTags = len(doc.Tags) == 0
		}
		if req.ClearDocDate {
			doc.DocDate = nil
			doc.NoDate = true
		} else if req.DocDate != nil {
			d := *req.DocDate
			doc.DocDate = &d
			doc.NoDate = false
		}
		if req.ClearDueDate {
			doc.DueDate = nil
		} else if req.DueDate != nil {
			d := *req.DueDate
			doc.DueDate = &d
		}
		if req.Starred != nil {
			doc.Starred = *req.Starred
		}

		updated = doc
		return tx.UpdateDocument(ctx, doc)
	})
	if err != nil {
		return nil, &DocumentError{Owner: req.Owner, DocumentID: req.DocumentID, Op: "update", Err: err}
	}
	return updated, nil
}

// BreakDocument dissolves a grouping: the document record goes away and all
// its pages return to the unattached pool. Media objects and blobs survive,
// so an incorrect grouping can be undone without losing uploads.
func (s *service) BreakDocument(ctx context.Context, owner string, id uuid.UUID) error {
	err := s.runInTx(ctx, owner, func(tx Store) error {
		doc, err := tx.GetDocument(ctx, owner, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteDocument(ctx, owner, id); err != nil {
			return err
		}
		for _, pageID := range doc.Pages {
			media, err := tx.GetMedia(ctx, owner, pageID)
			if err != nil {
				if errors.Is(err, ErrMediaNotFound) {
					continue
				}
				return err
			}
			media.DocumentID = nil
			media.LacksDocument = true
			if err := tx.UpdateMedia(ctx, media); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &DocumentError{Owner: owner, DocumentID: id, Op: "break", Err: err}
	}
	return nil
}

// DeleteDocumentAndMedia removes a document together with its pages and
// their blobs. Blob deletion happens first and outside the transaction so
// external-store I/O never holds the entity transaction open; a crash
// in between leaves dangling records for the orphan-media sweep.
func (s *service) DeleteDocumentAndMedia(ctx context.Context, owner string, id uuid.UUID) error {
	doc, err := s.store.GetDocument(ctx, owner, id)
	if err != nil {
		return err
	}

	// Phase 1: best-effort, idempotent blob deletes.
	for _, pageID := range doc.Pages {
		media, err := s.store.GetMedia(ctx, owner, pageID)
		if err != nil {
			if errors.Is(err, ErrMediaNotFound) {
				continue
			}
			return err
		}
		if err := s.blobs.Delete(ctx, media.BlobRef); err != nil {
			s.logger.Error("blob delete failed, sweep will retry",
				"owner", owner, "media_id", pageID, "blob_ref", media.BlobRef, "error", err)
		}
	}

	// Phase 2: atomic record deletion.
	err = s.runInTx(ctx, owner, func(tx Store) error {
		doc, err := tx.GetDocument(ctx, owner, id)
		if err != nil {
			if errors.Is(err, ErrDocumentNotFound) {
				return nil // raced with another delete
			}
			return err
		}
		if err := tx.DeleteDocument(ctx, owner, id); err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, owner)
		if err != nil {
			return err
		}
		for _, pageID := range doc.Pages {
			if err := tx.DeleteMedia(ctx, owner, pageID); err != nil {
				if errors.Is(err, ErrMediaNotFound) {
					continue
				}
				return err
			}
			user.MediaObjects--
		}
		return tx.PutUser(ctx, user)
	})
	if err != nil {
		return &DocumentError{Owner: owner, DocumentID: id, Op: "delete", Err: err}
	}
	return nil
}

func (s *service) ListDocuments(ctx context.Context, req ListDocumentsRequest) ([]*Document, error) {
	if len(req.Tags) > 0 && req.Untagged {
		return nil, &ValidationError{Field: "tags", Msg: "cannot combine tag search with untagged filter"}
	}
	if err := ValidateTags(req.Tags); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, DocumentListFilters{
		Owner:    req.Owner,
		Tags:     req.Tags,
		Untagged: req.Untagged,
		Limit:    req.Limit,
	})
}

func (s *service) ListUpcomingDue(ctx context.Context, owner string, limit int) ([]*Document, error) {
	return s.store.ListDocuments(ctx, DocumentListFilters{
		Owner:   owner,
		DueOnly: true,
		Limit:   limit,
	})
}
