package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

// IPFSBackend stores documents on the InterPlanetary File System. It keeps
// a local mapping from document ID to the CID returned by the node, pinned
// under the Files API so content survives garbage collection.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates an IPFS storage backend connected to the node at
// host:port.
func NewIPFSBackend(host, port, timeout string, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	return &IPFSBackend{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout),
	}, nil
}

// Fetch retrieves a document by ID and kind. The document is addressed
// through the Files API path written by Store.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.DocumentID, kind interfaces.DocumentKind) ([]byte, error) {
	start := time.Now()
	path := b.filesPath(id, kind)

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.FilesRead(ctx, path)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "no link named") {
			return nil, interfaces.ErrDocumentNotFound
		}
		b.log.Error("Failed to fetch document from IPFS",
			slog.String("path", path),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch document from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read document from IPFS: %w", err)
	}

	b.log.Debug("Fetched document from IPFS",
		slog.String("path", path),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// Store adds a document to IPFS, pins it under the Files API and returns
// its document ID.
func (b *IPFSBackend) Store(ctx context.Context, data []byte, kind interfaces.DocumentKind) (interfaces.DocumentID, error) {
	id := interfaces.ComputeDocumentID(data)

	if !b.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return id, fmt.Errorf("failed to add document to IPFS: %w", err)
	}

	path := b.filesPath(id, kind)
	if err := b.shell.FilesMkdir(ctx, b.kindDir(kind), shell.FilesMkdir.Parents(true)); err != nil {
		return id, fmt.Errorf("failed to create IPFS directory: %w", err)
	}
	if err := b.shell.FilesCp(ctx, "/ipfs/"+cid, path); err != nil {
		// Already present is fine; Store is content addressed.
		if !strings.Contains(err.Error(), "already has entry") {
			return id, fmt.Errorf("failed to link document in IPFS: %w", err)
		}
	}

	b.log.Debug("Stored document in IPFS",
		slog.String("ipfs_cid", cid),
		slog.String("document_id", id.String()),
		slog.String("kind", kind.String()))
	return id, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) kindDir(kind interfaces.DocumentKind) string {
	return "/certeq/" + kind.String()
}

func (b *IPFSBackend) filesPath(id interfaces.DocumentID, kind interfaces.DocumentKind) string {
	return b.kindDir(kind) + "/" + id.String()
}
