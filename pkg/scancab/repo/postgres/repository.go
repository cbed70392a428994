package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/scancab/scancab/pkg/scancab"
	"github.com/scancab/scancab/pkg/scancab/repo/postgres/migrations"
)

// DBTX is an interface that allows us to use either a connection pool or a
// transaction for queries
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements scancab.Store using PostgreSQL. A Store built with
// NewWithPool can open transactions; the tx-scoped Store handed to InTx
// work functions cannot nest another one.
type Store struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New creates a Postgres store over an existing connection or transaction.
// InTx is unavailable on stores built this way.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewWithPool creates a Postgres store with a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

// RunMigrations applies the embedded goose migrations to the database at dsn.
func RunMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("db open error: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// isSerialization reports whether err is a Postgres serialization failure or
// deadlock, both of which the caller may safely retry.
func isSerialization(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// User operations

func (s *Store) GetUser(ctx context.Context, key string) (*scancab.UserInfo, error) {
	query := `
        SELECT key, media_objects, upload_password_hash, created_at
        FROM users WHERE key = $1`

	var user scancab.UserInfo
	err := s.db.QueryRow(ctx, query, key).Scan(
		&user.Key, &user.MediaObjects, &user.UploadPasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scancab.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetOrCreateUser(ctx context.Context, key string) (*scancab.UserInfo, error) {
	query := `
        INSERT INTO users (key) VALUES ($1)
        ON CONFLICT (key) DO UPDATE SET key = EXCLUDED.key
        RETURNING key, media_objects, upload_password_hash, created_at`

	var user scancab.UserInfo
	err := s.db.QueryRow(ctx, query, key).Scan(
		&user.Key, &user.MediaObjects, &user.UploadPasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) PutUser(ctx context.Context, user *scancab.UserInfo) error {
	query := `
        UPDATE users SET media_objects = $2, upload_password_hash = $3
        WHERE key = $1`

	tag, err := s.db.Exec(ctx, query, user.Key, user.MediaObjects, user.UploadPasswordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return scancab.ErrUserNotFound
	}
	return nil
}

// Media object operations

func (s *Store) CreateMedia(ctx context.Context, media *scancab.MediaObject) error {
	query := `
        INSERT INTO media_objects (
            id, owner, blob_ref, created_at, content_type, filename,
            size, width, height, document_id, lacks_document
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.Exec(ctx, query,
		media.ID, media.Owner, media.BlobRef, media.CreatedAt,
		media.ContentType, media.Filename, media.Size,
		media.Width, media.Height, media.DocumentID, media.LacksDocument)
	return err
}

const mediaColumns = `
    id, owner, blob_ref, created_at, content_type, filename,
    size, width, height, document_id, lacks_document`

func scanMedia(row pgx.Row) (*scancab.MediaObject, error) {
	var media scancab.MediaObject
	err := row.Scan(
		&media.ID, &media.Owner, &media.BlobRef, &media.CreatedAt,
		&media.ContentType, &media.Filename, &media.Size,
		&media.Width, &media.Height, &media.DocumentID, &media.LacksDocument)
	if err != nil {
		return nil, err
	}
	return &media, nil
}

func (s *Store) GetMedia(ctx context.Context, owner string, id uuid.UUID) (*scancab.MediaObject, error) {
	query := `SELECT` + mediaColumns + ` FROM media_objects WHERE id = $1 AND owner = $2`

	media, err := scanMedia(s.db.QueryRow(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scancab.ErrMediaNotFound
		}
		return nil, err
	}
	return media, nil
}

func (s *Store) UpdateMedia(ctx context.Context, media *scancab.MediaObject) error {
	query := `
        UPDATE media_objects SET
            blob_ref = $3, content_type = $4, filename = $5, size = $6,
            width = $7, height = $8, document_id = $9, lacks_document = $10
        WHERE id = $1 AND owner = $2`

	tag, err := s.db.Exec(ctx, query,
		media.ID, media.Owner, media.BlobRef, media.ContentType,
		media.Filename, media.Size, media.Width, media.Height,
		media.DocumentID, media.LacksDocument)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return scancab.ErrMediaNotFound
	}
	return nil
}

func (s *Store) DeleteMedia(ctx context.Context, owner string, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM media_objects WHERE id = $1 AND owner = $2`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return scancab.ErrMediaNotFound
	}
	return nil
}

func (s *Store) ListMedia(ctx context.Context, filters scancab.MediaListFilters) ([]*scancab.MediaObject, error) {
	query := `SELECT` + mediaColumns + ` FROM media_objects WHERE owner = $1`
	args := []interface{}{filters.Owner}

	if filters.Unattached {
		query += ` AND lacks_document`
	}
	query += ` ORDER BY created_at`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

func (s *Store) ListAllMedia(ctx context.Context) ([]*scancab.MediaObject, error) {
	rows, err := s.db.Query(ctx, `SELECT`+mediaColumns+` FROM media_objects`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

func collectMedia(rows pgx.Rows) ([]*scancab.MediaObject, error) {
	var result []*scancab.MediaObject
	for rows.Next() {
		media, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, media)
	}
	return result, rows.Err()
}

// Document operations

const documentColumns = `
    id, owner, pages, preview, title, description, doc_date, no_date,
    due_date, tags, no_tags, physical_location, starred, created_at`

func scanDocument(row pgx.Row) (*scancab.Document, error) {
	var doc scancab.Document
	err := row.Scan(
		&doc.ID, &doc.Owner, &doc.Pages, &doc.Preview, &doc.Title,
		&doc.Description, &doc.DocDate, &doc.NoDate, &doc.DueDate,
		&doc.Tags, &doc.NoTags, &doc.PhysicalLocation, &doc.Starred,
		&doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc *scancab.Document) error {
	query := `
        INSERT INTO documents (
            id, owner, pages, preview, title, description, doc_date, no_date,
            due_date, tags, no_tags, physical_location, starred, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	preview := doc.Preview
	if preview == nil {
		preview = []uuid.UUID{}
	}
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := s.db.Exec(ctx, query,
		doc.ID, doc.Owner, doc.Pages, preview, doc.Title, doc.Description,
		doc.DocDate, doc.NoDate, doc.DueDate, tags, doc.NoTags,
		doc.PhysicalLocation, doc.Starred, doc.CreatedAt)
	return err
}

func (s *Store) GetDocument(ctx context.Context, owner string, id uuid.UUID) (*scancab.Document, error) {
	query := `SELECT` + documentColumns + ` FROM documents WHERE id = $1 AND owner = $2`

	doc, err := scanDocument(s.db.QueryRow(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scancab.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc *scancab.Document) error {
	query := `
        UPDATE documents SET
            pages = $3, preview = $4, title = $5, description = $6,
            doc_date = $7, no_date = $8, due_date = $9, tags = $10,
            no_tags = $11, physical_location = $12, starred = $13
        WHERE id = $1 AND owner = $2`

	preview := doc.Preview
	if preview == nil {
		preview = []uuid.UUID{}
	}
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}

	tag, err := s.db.Exec(ctx, query,
		doc.ID, doc.Owner, doc.Pages, preview, doc.Title, doc.Description,
		doc.DocDate, doc.NoDate, doc.DueDate, tags, doc.NoTags,
		doc.PhysicalLocation, doc.Starred)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return scancab.ErrDocumentNotFound
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, owner string, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND owner = $2`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return scancab.ErrDocumentNotFound
	}
	return nil
}

func (s *Store) ListDocuments(ctx context.Context, filters scancab.DocumentListFilters) ([]*scancab.Document, error) {
	query := `SELECT` + documentColumns + ` FROM documents WHERE owner = $1`
	args := []interface{}{filters.Owner}

	if len(filters.Tags) > 0 {
		args = append(args, filters.Tags)
		query += fmt.Sprintf(` AND tags @> $%d`, len(args))
	}
	if filters.Untagged {
		query += ` AND no_tags`
	}
	if filters.DueOnly {
		query += ` AND due_date IS NOT NULL ORDER BY due_date`
	} else {
		query += ` ORDER BY created_at DESC`
	}
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (s *Store) ListAllDocuments(ctx context.Context) ([]*scancab.Document, error) {
	rows, err := s.db.Query(ctx, `SELECT`+documentColumns+` FROM documents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func collectDocuments(rows pgx.Rows) ([]*scancab.Document, error) {
	var result []*scancab.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}

// Transactions

// InTx runs work in a serializable transaction holding an advisory lock on
// the owner's partition, so writers to one user's records are serialized
// the way a single-partition store would. Serialization failures and
// deadlocks surface as scancab.ErrTxConflict for the caller to retry.
func (s *Store) InTx(ctx context.Context, ownerKey string, work func(tx scancab.Store) error) error {
	if s.pool == nil {
		return fmt.Errorf("nested transactions are not supported")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerKey); err != nil {
		return err
	}

	if err := work(&Store{db: tx}); err != nil {
		if isSerialization(err) {
			return fmt.Errorf("%w: %v", scancab.ErrTxConflict, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerialization(err) {
			return fmt.Errorf("%w: %v", scancab.ErrTxConflict, err)
		}
		return err
	}
	return nil
}
