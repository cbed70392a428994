package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/scancab/scancab/pkg/scancab"
)

// Backend is a filesystem implementation of the scancab.BlobStore interface
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing blobs
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{baseDir: config.BaseDir}, nil
}

// Upload stores content directly on the filesystem
func (b *Backend) Upload(ctx context.Context, blobRef string, reader io.Reader) error {
	filePath := filepath.Join(b.baseDir, blobRef)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// UploadWithParams uploads content with additional parameters. The content
// type is not stored separately on the filesystem; it's detected on read.
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params scancab.UploadParams) error {
	return b.Upload(ctx, params.BlobRef, reader)
}

// Download streams a blob from the filesystem
func (b *Backend) Download(ctx context.Context, blobRef string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(b.baseDir, blobRef))
	if os.IsNotExist(err) {
		return nil, scancab.ErrBlobNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Meta retrieves metadata for a blob on the filesystem
func (b *Backend) Meta(ctx context.Context, blobRef string) (*scancab.BlobMeta, error) {
	filePath := filepath.Join(b.baseDir, blobRef)

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, scancab.ErrBlobNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	contentType := "application/octet-stream"
	if file, err := os.Open(filePath); err == nil {
		defer file.Close()
		buffer := make([]byte, 512)
		if n, err := file.Read(buffer); err == nil {
			contentType = http.DetectContentType(buffer[:n])
		}
	}

	return &scancab.BlobMeta{
		Ref:         blobRef,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
	}, nil
}

// Delete removes a blob from the filesystem. Missing blobs are a no-op so
// delete paths and sweeps can safely re-run.
func (b *Backend) Delete(ctx context.Context, blobRef string) error {
	filePath := filepath.Join(b.baseDir, blobRef)

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// ListRefs walks the base directory and returns every stored blob ref
func (b *Backend) ListRefs(ctx context.Context) ([]string, error) {
	var refs []string
	err := filepath.WalkDir(b.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.baseDir, path)
		if err != nil {
			return err
		}
		refs = append(refs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk storage directory: %w", err)
	}
	return refs, nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
