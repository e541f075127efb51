package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

// FileBackend stores documents on the local filesystem, one subdirectory
// per document kind.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file storage backend rooted at baseDir. Kind
// subdirectories are created on demand.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if baseDir == "" {
		return nil, errors.New("empty base directory")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch reads a document by its ID and kind. Returns ErrDocumentNotFound
// if no file exists for the ID.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.DocumentID, kind interfaces.DocumentKind) ([]byte, error) {
	path := b.documentPath(id, kind)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, interfaces.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	b.log.Debug("Fetched document from file backend",
		slog.String("path", path),
		slog.Int("size", len(data)))
	return data, nil
}

// Store writes a document and returns its content ID. Writes go through a
// temporary file and rename so a crash never leaves a truncated document
// under a valid ID.
func (b *FileBackend) Store(ctx context.Context, data []byte, kind interfaces.DocumentKind) (interfaces.DocumentID, error) {
	id := interfaces.ComputeDocumentID(data)
	path := b.documentPath(id, kind)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return id, fmt.Errorf("failed to create kind directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".doc-*")
	if err != nil {
		return id, fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return id, fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return id, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return id, fmt.Errorf("failed to finalize document: %w", err)
	}

	b.log.Debug("Stored document in file backend",
		slog.String("path", path),
		slog.String("document_id", id.String()),
		slog.Int("size", len(data)))
	return id, nil
}

// Available checks that the base directory is accessible.
func (b *FileBackend) Available(ctx context.Context) bool {
	info, err := os.Stat(b.baseDir)
	return err == nil && info.IsDir()
}

// Name returns a unique identifier for this backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", b.baseDir)
}

// LocationURI returns the URI that identifies this backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) documentPath(id interfaces.DocumentID, kind interfaces.DocumentKind) string {
	return filepath.Join(b.baseDir, kind.String(), id.String())
}
