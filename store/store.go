// Package store provides write-through persistence for the certification
// engine. The in-memory engine state stays authoritative; a Store receives
// every committed record so state survives restarts, one logical table per
// entity.
package store

import "github.com/certeq/equipment-certification-backend/interfaces"

// Snapshot is the full persisted state loaded at engine construction.
// Slices preserve insertion order; ledgers rely on it to rebuild their
// submission ordering.
type Snapshot struct {
	Manufacturers  []interfaces.Principal
	CABs           []interfaces.CABInfo
	Equipment      []interfaces.Equipment
	Auctions       []interfaces.Auction
	TestResults    []interfaces.TestResult
	Certifications []interfaces.CertificationRequest
	Balances       map[interfaces.Principal]interfaces.Currency
}

// Store persists engine records. Every Put upserts the record under its
// natural key; a failed write aborts the engine operation that attempted
// it, so persisted and in-memory state never diverge on commit.
type Store interface {
	PutManufacturer(addr interfaces.Principal) error
	PutCAB(info interfaces.CABInfo) error
	PutEquipment(eq interfaces.Equipment) error
	PutAuction(a interfaces.Auction) error
	PutBid(auctionID uint64, b interfaces.Bid) error
	PutTestResult(tr interfaces.TestResult) error
	PutCertification(cr interfaces.CertificationRequest) error
	AppendAuditEntry(equipmentID uint64, e interfaces.AuditEntry) error
	PutBalance(addr interfaces.Principal, balance interfaces.Currency) error

	// Load returns the persisted snapshot, or nil when the store holds no
	// state.
	Load() (*Snapshot, error)

	Close() error
}

// NopStore discards all writes and loads nothing. Used when the engine runs
// without durability.
type NopStore struct{}

// NewNopStore returns a store that persists nothing.
func NewNopStore() *NopStore { return &NopStore{} }

func (*NopStore) PutManufacturer(interfaces.Principal) error                 { return nil }
func (*NopStore) PutCAB(interfaces.CABInfo) error                            { return nil }
func (*NopStore) PutEquipment(interfaces.Equipment) error                    { return nil }
func (*NopStore) PutAuction(interfaces.Auction) error                        { return nil }
func (*NopStore) PutBid(uint64, interfaces.Bid) error                        { return nil }
func (*NopStore) PutTestResult(interfaces.TestResult) error                  { return nil }
func (*NopStore) PutCertification(interfaces.CertificationRequest) error     { return nil }
func (*NopStore) AppendAuditEntry(uint64, interfaces.AuditEntry) error       { return nil }
func (*NopStore) PutBalance(interfaces.Principal, interfaces.Currency) error { return nil }
func (*NopStore) Load() (*Snapshot, error)                                   { return nil, nil }
func (*NopStore) Close() error                                               { return nil }
