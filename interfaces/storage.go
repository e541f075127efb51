package interfaces

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// DocumentID is a 32-byte SHA-256 hash uniquely identifying a stored document.
type DocumentID [32]byte

// NewDocumentIDFromBytes creates a document ID from a raw 32-byte slice.
func NewDocumentIDFromBytes(source []byte) (DocumentID, error) {
	if len(source) != 32 {
		return DocumentID{}, errors.New("invalid DocumentID conversion from bytes: incorrect length")
	}

	var hash [32]byte
	copy(hash[:], source)
	return DocumentID(hash), nil
}

// NewDocumentIDFromHex creates a document ID from a 64-character hex string.
func NewDocumentIDFromHex(source string) (DocumentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return DocumentID{}, errors.New("invalid document ID length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return DocumentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], hashBytes)
	return DocumentID(hash), nil
}

// ComputeDocumentID calculates the document ID of data.
func ComputeDocumentID(data []byte) DocumentID {
	hash := sha256.Sum256(data)
	return DocumentID(hash)
}

// String returns the hex representation.
func (id DocumentID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 32-byte hash.
func (id DocumentID) Bytes() []byte {
	return id[:]
}

// Equal compares two document IDs.
func (id DocumentID) Equal(other DocumentID) bool {
	return bytes.Equal(id[:], other[:])
}

// ContentHash returns the document ID as an engine content hash suitable
// for recording on the ledgers.
func (id DocumentID) ContentHash() ContentHash {
	return ContentHash(id.String())
}

// DocumentKind indicates the storage namespace of a document.
type DocumentKind int

const (
	// EquipmentDoc for equipment registration documents
	EquipmentDoc DocumentKind = iota
	// TestReportDoc for CAB test reports
	TestReportDoc
	// AuditReportDoc for CAB audit reports
	AuditReportDoc
	// CABDetailsDoc for CAB self-descriptions
	CABDetailsDoc
)

// String returns the kind name.
func (k DocumentKind) String() string {
	switch k {
	case EquipmentDoc:
		return "equipment"
	case TestReportDoc:
		return "test-report"
	case AuditReportDoc:
		return "audit-report"
	case CABDetailsDoc:
		return "cab-details"
	default:
		return "unknown"
	}
}

// ParseDocumentKind converts a kind name to a DocumentKind.
func ParseDocumentKind(s string) (DocumentKind, error) {
	switch s {
	case "equipment":
		return EquipmentDoc, nil
	case "test-report":
		return TestReportDoc, nil
	case "audit-report":
		return AuditReportDoc, nil
	case "cab-details":
		return CABDetailsDoc, nil
	default:
		return 0, fmt.Errorf("unknown document kind: %q", s)
	}
}

var (
	// ErrDocumentNotFound is returned when a requested document cannot be
	// found in the storage backend.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible, whether due to network issues, authentication failures,
	// or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is
	// malformed or unsupported. URIs follow the format
	// [scheme]://[auth@]host[:port][/path][?params].
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend provides content-addressed document storage. The engine
// itself never resolves document hashes; backends serve the upload/fetch
// boundary consumed by dashboards and CABs.
type StorageBackend interface {
	// Fetch retrieves a document by ID and kind.
	Fetch(ctx context.Context, id DocumentID, kind DocumentKind) ([]byte, error)

	// Store saves a document and returns its ID.
	Store(ctx context.Context, data []byte, kind DocumentKind) (DocumentID, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// StorageBackendFactory creates storage backends from location URIs.
type StorageBackendFactory interface {
	// StorageBackendFor creates a backend from a URI.
	// Supports file://, ipfs://, s3://, vault://
	StorageBackendFor(locationURI string) (StorageBackend, error)

	// CreateMultiBackend creates an aggregated storage backend that writes
	// to every available backend and reads from the first that has the
	// content.
	CreateMultiBackend(locationURIs []string) (StorageBackend, error)
}
