package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

// MultiStorageBackend aggregates several backends with fallback: documents
// are stored to every available backend and fetched from the first one that
// has the content.
type MultiStorageBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

// NewMultiStorageBackend creates a multi-storage backend over the given
// backends.
func NewMultiStorageBackend(backends []interfaces.StorageBackend, log *slog.Logger) *MultiStorageBackend {
	if log == nil {
		log = slog.Default()
	}
	return &MultiStorageBackend{
		backends: backends,
		log:      log,
	}
}

// Fetch tries each backend in order and returns the first hit.
func (m *MultiStorageBackend) Fetch(ctx context.Context, id interfaces.DocumentID, kind interfaces.DocumentKind) ([]byte, error) {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend", backend.Name()),
				slog.String("document_id", id.String()))
			continue
		}

		data, err := backend.Fetch(ctx, id, kind)
		if err == nil {
			m.log.Debug("Fetched document",
				slog.String("backend", backend.Name()),
				slog.String("document_id", id.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}
		if !errors.Is(err, interfaces.ErrDocumentNotFound) {
			m.log.Warn("Backend fetch failed",
				slog.String("backend", backend.Name()),
				"err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
	}

	if len(errs) == 0 {
		return nil, interfaces.ErrBackendUnavailable
	}
	for _, err := range errs {
		if !errors.Is(err, interfaces.ErrDocumentNotFound) {
			return nil, errors.Join(errs...)
		}
	}
	return nil, interfaces.ErrDocumentNotFound
}

// Store writes the document to every available backend. It succeeds when
// at least one backend accepted the document.
func (m *MultiStorageBackend) Store(ctx context.Context, data []byte, kind interfaces.DocumentKind) (interfaces.DocumentID, error) {
	id := interfaces.ComputeDocumentID(data)
	stored := 0
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			continue
		}
		if _, err := backend.Store(ctx, data, kind); err != nil {
			m.log.Warn("Backend store failed",
				slog.String("backend", backend.Name()),
				"err", err)
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			continue
		}
		stored++
	}

	if stored == 0 {
		if len(errs) > 0 {
			return id, errors.Join(errs...)
		}
		return id, interfaces.ErrBackendUnavailable
	}

	m.log.Debug("Stored document",
		slog.String("document_id", id.String()),
		slog.Int("backends", stored))
	return id, nil
}

// Available reports whether at least one backend is accessible.
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns a combined identifier for logging.
func (m *MultiStorageBackend) Name() string {
	names := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		names = append(names, backend.Name())
	}
	return "multi[" + strings.Join(names, ",") + "]"
}

// LocationURI returns the URIs of all aggregated backends.
func (m *MultiStorageBackend) LocationURI() string {
	uris := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		uris = append(uris, backend.LocationURI())
	}
	return strings.Join(uris, ",")
}
