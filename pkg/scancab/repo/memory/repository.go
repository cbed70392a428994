package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scancab/scancab/pkg/scancab"
)

// Store implements scancab.Store using in-memory storage. Transactions are
// serialized under one mutex and rolled back from a snapshot on error, so
// InTx gives the same all-or-nothing behavior the Postgres store does,
// without ever reporting a conflict.
type Store struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	users map[string]*scancab.UserInfo
	media map[uuid.UUID]*scancab.MediaObject
	docs  map[uuid.UUID]*scancab.Document
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		st: &state{
			users: make(map[string]*scancab.UserInfo),
			media: make(map[uuid.UUID]*scancab.MediaObject),
			docs:  make(map[uuid.UUID]*scancab.Document),
		},
	}
}

func (st *state) clone() *state {
	c := &state{
		users: make(map[string]*scancab.UserInfo, len(st.users)),
		media: make(map[uuid.UUID]*scancab.MediaObject, len(st.media)),
		docs:  make(map[uuid.UUID]*scancab.Document, len(st.docs)),
	}
	for k, v := range st.users {
		u := *v
		c.users[k] = &u
	}
	for k, v := range st.media {
		m := copyMedia(v)
		c.media[k] = m
	}
	for k, v := range st.docs {
		c.docs[k] = copyDoc(v)
	}
	return c
}

func copyMedia(m *scancab.MediaObject) *scancab.MediaObject {
	c := *m
	if m.Width != nil {
		w := *m.Width
		c.Width = &w
	}
	if m.Height != nil {
		h := *m.Height
		c.Height = &h
	}
	if m.DocumentID != nil {
		id := *m.DocumentID
		c.DocumentID = &id
	}
	return &c
}

func copyDoc(d *scancab.Document) *scancab.Document {
	c := *d
	c.Pages = append([]uuid.UUID(nil), d.Pages...)
	c.Preview = append([]uuid.UUID(nil), d.Preview...)
	c.Tags = append([]string(nil), d.Tags...)
	if d.DocDate != nil {
		t := *d.DocDate
		c.DocDate = &t
	}
	if d.DueDate != nil {
		t := *d.DueDate
		c.DueDate = &t
	}
	return &c
}

// User operations

func (s *Store) GetUser(ctx context.Context, key string) (*scancab.UserInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getUser(key)
}

func (s *Store) GetOrCreateUser(ctx context.Context, key string) (*scancab.UserInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getOrCreateUser(key)
}

func (s *Store) PutUser(ctx context.Context, user *scancab.UserInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.putUser(user)
}

func (st *state) getUser(key string) (*scancab.UserInfo, error) {
	user, exists := st.users[key]
	if !exists {
		return nil, scancab.ErrUserNotFound
	}
	userCopy := *user
	return &userCopy, nil
}

func (st *state) getOrCreateUser(key string) (*scancab.UserInfo, error) {
	if user, exists := st.users[key]; exists {
		userCopy := *user
		return &userCopy, nil
	}
	user := &scancab.UserInfo{Key: key, CreatedAt: time.Now().UTC()}
	st.users[key] = user
	userCopy := *user
	return &userCopy, nil
}

func (st *state) putUser(user *scancab.UserInfo) error {
	if _, exists := st.users[user.Key]; !exists {
		return scancab.ErrUserNotFound
	}
	userCopy := *user
	st.users[user.Key] = &userCopy
	return nil
}

// Media object operations

func (s *Store) CreateMedia(ctx context.Context, media *scancab.MediaObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createMedia(media)
}

func (s *Store) GetMedia(ctx context.Context, owner string, id uuid.UUID) (*scancab.MediaObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getMedia(owner, id)
}

func (s *Store) UpdateMedia(ctx context.Context, media *scancab.MediaObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateMedia(media)
}

func (s *Store) DeleteMedia(ctx context.Context, owner string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteMedia(owner, id)
}

func (s *Store) ListMedia(ctx context.Context, filters scancab.MediaListFilters) ([]*scancab.MediaObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listMedia(filters)
}

func (s *Store) ListAllMedia(ctx context.Context) ([]*scancab.MediaObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listAllMedia()
}

func (st *state) createMedia(media *scancab.MediaObject) error {
	if _, exists := st.media[media.ID]; exists {
		return fmt.Errorf("media %s already exists", media.ID)
	}
	st.media[media.ID] = copyMedia(media)
	return nil
}

func (st *state) getMedia(owner string, id uuid.UUID) (*scancab.MediaObject, error) {
	media, exists := st.media[id]
	if !exists || media.Owner != owner {
		return nil, scancab.ErrMediaNotFound
	}
	return copyMedia(media), nil
}

func (st *state) updateMedia(media *scancab.MediaObject) error {
	existing, exists := st.media[media.ID]
	if !exists || existing.Owner != media.Owner {
		return scancab.ErrMediaNotFound
	}
	st.media[media.ID] = copyMedia(media)
	return nil
}

func (st *state) deleteMedia(owner string, id uuid.UUID) error {
	media, exists := st.media[id]
	if !exists || media.Owner != owner {
		return scancab.ErrMediaNotFound
	}
	delete(st.media, id)
	return nil
}

func (st *state) listMedia(filters scancab.MediaListFilters) ([]*scancab.MediaObject, error) {
	var result []*scancab.MediaObject
	for _, media := range st.media {
		if media.Owner != filters.Owner {
			continue
		}
		if filters.Unattached && !media.LacksDocument {
			continue
		}
		result = append(result, copyMedia(media))
	}

	// Oldest first, matching upload order.
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}
	return result, nil
}

func (st *state) listAllMedia() ([]*scancab.MediaObject, error) {
	result := make([]*scancab.MediaObject, 0, len(st.media))
	for _, media := range st.media {
		result = append(result, copyMedia(media))
	}
	return result, nil
}

// Document operations

func (s *Store) CreateDocument(ctx context.Context, doc *scancab.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createDocument(doc)
}

func (s *Store) GetDocument(ctx context.Context, owner string, id uuid.UUID) (*scancab.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getDocument(owner, id)
}

func (s *Store) UpdateDocument(ctx context.Context, doc *scancab.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateDocument(doc)
}

func (s *Store) DeleteDocument(ctx context.Context, owner string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteDocument(owner, id)
}

func (s *Store) ListDocuments(ctx context.Context, filters scancab.DocumentListFilters) ([]*scancab.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listDocuments(filters)
}

func (s *Store) ListAllDocuments(ctx context.Context) ([]*scancab.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listAllDocuments()
}

func (st *state) createDocument(doc *scancab.Document) error {
	if _, exists := st.docs[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	st.docs[doc.ID] = copyDoc(doc)
	return nil
}

func (st *state) getDocument(owner string, id uuid.UUID) (*scancab.Document, error) {
	doc, exists := st.docs[id]
	if !exists || doc.Owner != owner {
		return nil, scancab.ErrDocumentNotFound
	}
	return copyDoc(doc), nil
}

func (st *state) updateDocument(doc *scancab.Document) error {
	existing, exists := st.docs[doc.ID]
	if !exists || existing.Owner != doc.Owner {
		return scancab.ErrDocumentNotFound
	}
	st.docs[doc.ID] = copyDoc(doc)
	return nil
}

func (st *state) deleteDocument(owner string, id uuid.UUID) error {
	doc, exists := st.docs[id]
	if !exists || doc.Owner != owner {
		return scancab.ErrDocumentNotFound
	}
	delete(st.docs, id)
	return nil
}

func (st *state) listDocuments(filters scancab.DocumentListFilters) ([]*scancab.Document, error) {
	var result []*scancab.Document
	for _, doc := range st.docs {
		if doc.Owner != filters.Owner {
			continue
		}
		if filters.Untagged && !doc.NoTags {
			continue
		}
		if filters.DueOnly && doc.DueDate == nil {
			continue
		}
		if !hasAllTags(doc, filters.Tags) {
			continue
		}
		result = append(result, copyDoc(doc))
	}

	if filters.DueOnly {
		sort.Slice(result, func(i, j int) bool {
			return result[i].DueDate.Before(*result[j].DueDate)
		})
	} else {
		sort.Slice(result, func(i, j int) bool {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		})
	}

	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}
	return result, nil
}

func hasAllTags(doc *scancab.Document, tags []string) bool {
	for _, want := range tags {
		found := false
		for _, have := range doc.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (st *state) listAllDocuments() ([]*scancab.Document, error) {
	result := make([]*scancab.Document, 0, len(st.docs))
	for _, doc := range st.docs {
		result = append(result, copyDoc(doc))
	}
	return result, nil
}

// Transactions

// InTx serializes the transaction under the store mutex and snapshots state
// up front; if work fails, the snapshot is restored, so partial writes never
// become visible.
func (s *Store) InTx(ctx context.Context, ownerKey string, work func(tx scancab.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := work(&txView{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// txView exposes the live state to a transaction body without re-locking.
type txView struct {
	st *state
}

func (t *txView) GetUser(ctx context.Context, key string) (*scancab.UserInfo, error) {
	return t.st.getUser(key)
}

func (t *txView) GetOrCreateUser(ctx context.Context, key string) (*scancab.UserInfo, error) {
	return t.st.getOrCreateUser(key)
}

func (t *txView) PutUser(ctx context.Context, user *scancab.UserInfo) error {
	return t.st.putUser(user)
}

func (t *txView) CreateMedia(ctx context.Context, media *scancab.MediaObject) error {
	return t.st.createMedia(media)
}

func (t *txView) GetMedia(ctx context.Context, owner string, id uuid.UUID) (*scancab.MediaObject, error) {
	return t.st.getMedia(owner, id)
}

func (t *txView) UpdateMedia(ctx context.Context, media *scancab.MediaObject) error {
	return t.st.updateMedia(media)
}

func (t *txView) DeleteMedia(ctx context.Context, owner string, id uuid.UUID) error {
	return t.st.deleteMedia(owner, id)
}

func (t *txView) ListMedia(ctx context.Context, filters scancab.MediaListFilters) ([]*scancab.MediaObject, error) {
	return t.st.listMedia(filters)
}

func (t *txView) ListAllMedia(ctx context.Context) ([]*scancab.MediaObject, error) {
	return t.st.listAllMedia()
}

func (t *txView) CreateDocument(ctx context.Context, doc *scancab.Document) error {
	return t.st.createDocument(doc)
}

func (t *txView) GetDocument(ctx context.Context, owner string, id uuid.UUID) (*scancab.Document, error) {
	return t.st.getDocument(owner, id)
}

func (t *txView) UpdateDocument(ctx context.Context, doc *scancab.Document) error {
	return t.st.updateDocument(doc)
}

func (t *txView) DeleteDocument(ctx context.Context, owner string, id uuid.UUID) error {
	return t.st.deleteDocument(owner, id)
}

func (t *txView) ListDocuments(ctx context.Context, filters scancab.DocumentListFilters) ([]*scancab.Document, error) {
	return t.st.listDocuments(filters)
}

func (t *txView) ListAllDocuments(ctx context.Context) ([]*scancab.Document, error) {
	return t.st.listAllDocuments()
}

func (t *txView) InTx(ctx context.Context, ownerKey string, work func(tx scancab.Store) error) error {
	return fmt.Errorf("nested transactions are not supported")
}
