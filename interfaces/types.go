// Package interfaces defines the core types and component contracts for the
// equipment certification engine. It provides the contract between different
// components without implementation details.
package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
)

// Principal is an unforgeable 20-byte caller identity derived from a
// secp256k1 public key. Roles are not inherent to a Principal; they are
// derived by membership in registry sets or by matching a designated
// owner slot (registrar, certifier).
type Principal [20]byte

// NewPrincipalFromBytes creates a principal from a raw 20-byte slice.
func NewPrincipalFromBytes(addr []byte) (Principal, error) {
	if len(addr) != 20 {
		return Principal{}, errors.New("invalid principal length: must be 20 bytes")
	}

	var res Principal
	copy(res[:], addr)
	return res, nil
}

// NewPrincipalFromHex creates a principal from a hex string, with or
// without the 0x prefix.
func NewPrincipalFromHex(addr string) (Principal, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return Principal{}, errors.New("invalid principal length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewPrincipalFromBytes(addrBytes)
}

// PrincipalFromAddress converts a go-ethereum address to a principal.
func PrincipalFromAddress(addr common.Address) Principal {
	return Principal(addr)
}

// String returns the 0x-prefixed hex representation.
func (p Principal) String() string {
	return "0x" + hex.EncodeToString(p[:])
}

// Bytes returns the raw 20-byte identity.
func (p Principal) Bytes() []byte {
	return p[:]
}

// Address returns the principal as a go-ethereum address.
func (p Principal) Address() common.Address {
	return common.Address(p)
}

// Equal compares two principals.
func (p Principal) Equal(other Principal) bool {
	return p == other
}

// IsZero reports whether the principal is the zero identity.
func (p Principal) IsZero() bool {
	return p == Principal{}
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := NewPrincipalFromHex(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ContentHash is an opaque content-addressed pointer to off-engine document
// storage. The original deployments used 46-character IPFS CIDs; the engine
// validates shape only and never resolves the content.
type ContentHash string

// maxContentHashLen bounds stored hashes; real content IDs are well under this.
const maxContentHashLen = 128

// NewContentHash validates and returns a content hash.
func NewContentHash(s string) (ContentHash, error) {
	h := ContentHash(s)
	if err := h.Validate(); err != nil {
		return "", err
	}
	return h, nil
}

// Validate checks that the hash is non-empty, bounded and printable ASCII.
func (h ContentHash) Validate() error {
	if len(h) == 0 {
		return errors.New("empty content hash")
	}
	if len(h) > maxContentHashLen {
		return fmt.Errorf("content hash exceeds %d characters", maxContentHashLen)
	}
	for _, r := range h {
		if r > unicode.MaxASCII || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return errors.New("content hash contains invalid characters")
		}
	}
	return nil
}

// String returns the hash as a string.
func (h ContentHash) String() string {
	return string(h)
}

// Currency is a settlement amount in the engine's smallest monetary unit.
type Currency uint64

// EquipmentKind distinguishes the two equipment categories accepted by the
// catalog.
type EquipmentKind uint8

const (
	KindA EquipmentKind = iota
	KindB
)

// ParseEquipmentKind converts a wire value to an equipment kind.
func ParseEquipmentKind(v uint8) (EquipmentKind, error) {
	switch EquipmentKind(v) {
	case KindA, KindB:
		return EquipmentKind(v), nil
	default:
		return 0, fmt.Errorf("unknown equipment kind: %d", v)
	}
}

// String returns the kind name.
func (k EquipmentKind) String() string {
	switch k {
	case KindA:
		return "A"
	case KindB:
		return "B"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of an accreditation or certification record.
// Status moves monotonically Pending -> {Approved, Denied}; from Approved a
// record re-enters review only through the explicit update/confirm cycle,
// and Revoked is terminal.
type Status uint8

const (
	StatusPending Status = iota
	StatusApproved
	StatusDenied
	StatusRevoked
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusDenied:
		return "denied"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Decision is a registrar or certifier verdict. Wire values follow the
// original deployment: 1 approves, 2 denies.
type Decision uint8

const (
	DecisionApprove Decision = 1
	DecisionDeny    Decision = 2
)

// ParseDecision converts a wire value to a decision.
func ParseDecision(v uint8) (Decision, error) {
	switch Decision(v) {
	case DecisionApprove, DecisionDeny:
		return Decision(v), nil
	default:
		return 0, fmt.Errorf("unknown decision: %d", v)
	}
}

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// Equipment is a catalog record. Created once by RegisterEquipment and
// immutable thereafter; downstream ledgers attach records keyed by ID,
// they never overwrite it.
type Equipment struct {
	ID           uint64        `json:"id"`
	Kind         EquipmentKind `json:"kind"`
	Manufacturer Principal     `json:"manufacturer"`
	DocHash      ContentHash   `json:"doc_hash"`
	RegisteredAt time.Time     `json:"registered_at"`
}

// CABInfo describes a registered conformity assessment body.
type CABInfo struct {
	Name       string      `json:"name"`
	Addr       Principal   `json:"addr"`
	Details    ContentHash `json:"details,omitempty"`
	Accredited bool        `json:"accredited"`
}

// Bid is a single CAB offer on an auction. Bid IDs are sequential per
// auction, starting at 1. Immutable once recorded.
type Bid struct {
	ID          uint64    `json:"id"`
	CAB         Principal `json:"cab"`
	Amount      Currency  `json:"amount"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Auction is a reverse auction selecting the CAB that will test one piece
// of equipment. Auction IDs are global and sequential, starting at 1; at
// most one auction exists per equipment ID.
type Auction struct {
	ID           uint64    `json:"id"`
	EquipmentID  uint64    `json:"equipment_id"`
	Manufacturer Principal `json:"manufacturer"`
	Active       bool      `json:"active"`
	Bids         []Bid     `json:"bids"`
	BestBidID    uint64    `json:"best_bid_id,omitempty"` // zero until the auction closes
}

// TestResult is the accreditation-ledger record for one piece of equipment,
// created by the auction's winning CAB.
type TestResult struct {
	EquipmentID   uint64      `json:"equipment_id"`
	CAB           Principal   `json:"cab"`
	DocHash       ContentHash `json:"doc_hash"`
	Status        Status      `json:"status"`
	PendingUpdate ContentHash `json:"pending_update,omitempty"`
	SubmittedAt   time.Time   `json:"submitted_at"`
}

// AuditEntry is one append-only audit record on a certification request.
// ChainHash commits to the entry and its predecessor's chain hash, making
// reordering or mutation of earlier entries detectable.
type AuditEntry struct {
	Auditor   Principal   `json:"auditor"`
	DocHash   ContentHash `json:"doc_hash"`
	Timestamp time.Time   `json:"timestamp"`
	ChainHash string      `json:"chain_hash"`
}

// CertificationRequest is the certification-ledger record for one piece of
// equipment.
type CertificationRequest struct {
	EquipmentID   uint64       `json:"equipment_id"`
	Manufacturer  Principal    `json:"manufacturer"`
	CAB           Principal    `json:"cab"`
	Status        Status       `json:"status"`
	DocHash       ContentHash  `json:"doc_hash"`
	PendingUpdate ContentHash  `json:"pending_update,omitempty"`
	AuditLog      []AuditEntry `json:"audit_log,omitempty"`
	Revoked       bool         `json:"revoked"`
	RequestedAt   time.Time    `json:"requested_at"`
}
