package interfaces

// IdentityRegistry owns the set of recognized manufacturers and CABs. All
// admission and accreditation operations are reserved to the fixed registrar
// principal; a CAB may only update its own details pointer.
type IdentityRegistry interface {
	// RegisterManufacturer admits addr as a manufacturer. Re-registering an
	// existing manufacturer is a no-op success, matching the original
	// deployment's set semantics.
	RegisterManufacturer(caller, addr Principal) error

	// RegisterCAB admits addr as a CAB with accredited = false.
	RegisterCAB(caller Principal, name string, addr Principal) error

	// UpdateCABDetails sets the caller's own details pointer.
	UpdateCABDetails(caller Principal, details ContentHash) error

	// AccreditCAB sets the accredited flag of a known CAB.
	AccreditCAB(caller, addr Principal, accredited bool) error

	// CABDetails returns the record of a known CAB.
	CABDetails(addr Principal) (CABInfo, error)

	// ListCABs returns all registered CABs in registration order.
	ListCABs() []CABInfo

	// IsManufacturer reports whether addr is a registered manufacturer.
	IsManufacturer(addr Principal) bool

	// IsCAB reports whether addr is a registered CAB, accredited or not.
	IsCAB(addr Principal) bool

	// IsAccreditedCAB reports whether addr is a CAB with accredited = true.
	IsAccreditedCAB(addr Principal) bool
}

// EquipmentCatalog owns equipment records keyed by a dense, strictly
// increasing identifier starting at 1.
type EquipmentCatalog interface {
	// RegisterEquipment allocates the next id and stores the record. The
	// caller must be a registered manufacturer.
	RegisterEquipment(caller Principal, kind EquipmentKind, docHash ContentHash) (uint64, error)

	// EquipmentDetails returns the record for an allocated id.
	EquipmentDetails(id uint64) (Equipment, error)

	// ListEquipmentByManufacturer returns all equipment owned by addr in
	// registration order.
	ListEquipmentByManufacturer(addr Principal) []Equipment

	// EquipmentCount returns the highest allocated equipment id.
	EquipmentCount() uint64
}

// AuctionMarket runs one reverse auction per equipment item to select the
// testing CAB. The lowest bid wins; ties break by earliest submission.
type AuctionMarket interface {
	// CreateAuction opens an auction for the caller's equipment and
	// returns the new auction id.
	CreateAuction(caller Principal, equipmentID uint64) (uint64, error)

	// SubmitBid appends a bid from an accredited CAB to an open auction
	// and returns the per-auction bid id.
	SubmitBid(caller Principal, auctionID uint64, amount Currency) (uint64, error)

	// SelectBestBid closes the auction, records the best bid and credits
	// the attached payment to the winning CAB. The payment must equal the
	// best bid's amount exactly.
	SelectBestBid(caller Principal, auctionID uint64, payment Currency) (Bid, error)

	// AuctionDetails returns the auction record.
	AuctionDetails(auctionID uint64) (Auction, error)

	// BidDetails returns one bid of an auction.
	BidDetails(auctionID, bidID uint64) (Bid, error)

	// WinningCAB returns the CAB selected for an equipment item. Fails
	// with ErrNoWinner before the auction closes.
	WinningCAB(equipmentID uint64) (Principal, error)

	// ListOpenAuctions returns all auctions still accepting bids.
	ListOpenAuctions() []Auction

	// AuctionCount returns the highest allocated auction id.
	AuctionCount() uint64
}

// SettlementLedger tracks balances credited by auction settlement.
type SettlementLedger interface {
	// Credit adds amount to the principal's balance. The new balance
	// persists before it commits; on error the balance is unchanged.
	Credit(addr Principal, amount Currency) error

	// BalanceOf returns the principal's current balance.
	BalanceOf(addr Principal) Currency
}

// AccreditationLedger records test results submitted by auction-selected
// CABs and the registrar's decisions.
type AccreditationLedger interface {
	// SubmitTestResults creates the Pending record. The caller must be the
	// equipment's winning CAB.
	SubmitTestResults(caller Principal, equipmentID uint64, docHash ContentHash) error

	// MakeAccreditationDecision moves a Pending record to Approved or
	// Denied. Registrar only.
	MakeAccreditationDecision(caller Principal, equipmentID uint64, decision Decision) error

	// UpdateAccreditation stages a replacement document hash on an
	// Approved record without touching its committed state. Registrar only.
	UpdateAccreditation(caller Principal, equipmentID uint64, docHash ContentHash) error

	// ConfirmUpdatedAccreditation commits or discards the staged hash.
	// Registrar only.
	ConfirmUpdatedAccreditation(caller Principal, equipmentID uint64, decision Decision) error

	// RevokeAccreditation moves an Approved record to Revoked, terminally.
	// Registrar only.
	RevokeAccreditation(caller Principal, equipmentID uint64) error

	// TestResultDetails returns the record for an equipment id.
	TestResultDetails(equipmentID uint64) (TestResult, error)

	// ListPendingAccreditations returns all records awaiting a registrar
	// decision, in submission order.
	ListPendingAccreditations() []TestResult
}

// CertificationLedger records certification requests, certifier decisions
// and the append-only audit trail.
type CertificationLedger interface {
	// RequestCertification creates the Pending request. The caller must be
	// the equipment's manufacturer and cab must match the CAB recorded on
	// the accreditation ledger.
	RequestCertification(caller Principal, equipmentID uint64, cab Principal, docHash ContentHash) error

	// MakeCertificationDecision moves a Pending request to Approved or
	// Denied. Certifier only.
	MakeCertificationDecision(caller Principal, equipmentID uint64, decision Decision) error

	// UpdateCertification stages a replacement document hash on an
	// Approved request. Requesting manufacturer only.
	UpdateCertification(caller Principal, equipmentID uint64, docHash ContentHash) error

	// ConfirmUpdatedCertification commits or discards the staged hash.
	// Certifier only.
	ConfirmUpdatedCertification(caller Principal, equipmentID uint64, decision Decision) error

	// SubmitAuditReport appends an audit entry. The caller must be the CAB
	// recorded on the request. Unlimited appends, no state transition.
	SubmitAuditReport(caller Principal, equipmentID uint64, docHash ContentHash) error

	// RevokeCertification moves an Approved request to Revoked, terminally.
	// Certifier only.
	RevokeCertification(caller Principal, equipmentID uint64) error

	// CertificationRequestDetails returns the request for an equipment id.
	CertificationRequestDetails(equipmentID uint64) (CertificationRequest, error)

	// AuditLog returns the request's audit entries in submission order.
	AuditLog(equipmentID uint64) ([]AuditEntry, error)

	// ListPendingCertifications returns all requests awaiting a certifier
	// decision, in submission order.
	ListPendingCertifications() []CertificationRequest
}
