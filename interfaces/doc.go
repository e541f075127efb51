// Package interfaces defines the core interfaces and types for the equipment
// certification engine, separating interface definitions from implementations.
//
// # Engine Interfaces
//
// IdentityRegistry: Owns the set of recognized manufacturers and CABs and the
// registrar-gated admission and accreditation operations.
//
// EquipmentCatalog: Owns equipment records keyed by dense sequential ids.
//
// AuctionMarket: Runs one reverse auction per equipment item to select the
// testing CAB at the lowest offered price.
//
// AccreditationLedger: Records test results and registrar decisions, with a
// two-phase update cycle and terminal revocation.
//
// CertificationLedger: Records certification requests, certifier decisions,
// a two-phase update cycle, an append-only audit trail and revocation.
//
// SettlementLedger: Tracks balances credited by auction settlement.
//
// # Storage Interfaces
//
// StorageBackend: Content-addressed document storage across multiple backend
// types (file, IPFS, S3, Vault).
//
// StorageBackendFactory: Creates storage backends from URI strings and
// aggregates them for redundant storage.
//
// # Type Definitions
//
//   - Principal: 20-byte caller identity derived from a secp256k1 key
//   - ContentHash: opaque content pointer recorded on the ledgers
//   - DocumentID: 32-byte SHA-256 hash addressing stored documents
//   - Status / Decision: lifecycle state and verdict enumerations
//
// Error kinds shared by all components live in errors.go; each maps to a
// single failure class (unauthorized, not found, already exists, invalid
// state, payment mismatch, no bids, no winner).
package interfaces
