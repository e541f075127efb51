package engine

import (
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/certeq/equipment-certification-backend/interfaces"
	"github.com/certeq/equipment-certification-backend/store"
)

// CertificationLedger records certification requests, the certifier's
// decisions, a two-phase update cycle, an append-only hash-chained audit
// trail and terminal revocation. It implements
// interfaces.CertificationLedger.
type CertificationLedger struct {
	mu            sync.RWMutex
	certifier     interfaces.Principal
	catalog       *EquipmentCatalog
	accreditation *AccreditationLedger

	requests map[uint64]*interfaces.CertificationRequest
	order    []uint64

	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewCertificationLedger creates a ledger over the given catalog and
// accreditation ledger.
func NewCertificationLedger(certifier interfaces.Principal, catalog *EquipmentCatalog, accreditation *AccreditationLedger, st store.Store, log *slog.Logger) *CertificationLedger {
	return &CertificationLedger{
		certifier:     certifier,
		catalog:       catalog,
		accreditation: accreditation,
		requests:      make(map[uint64]*interfaces.CertificationRequest),
		store:         st,
		log:           log,
		now:           time.Now,
	}
}

// RequestCertification creates the Pending request for an equipment item.
// The caller must be the equipment's manufacturer; the named CAB must match
// the CAB recorded on the accreditation ledger, and the accreditation must
// currently be Approved.
func (l *CertificationLedger) RequestCertification(caller interfaces.Principal, equipmentID uint64, cab interfaces.Principal, docHash interfaces.ContentHash) error {
	if err := docHash.Validate(); err != nil {
		return err
	}
	eq, err := l.catalog.EquipmentDetails(equipmentID)
	if err != nil {
		return err
	}
	if eq.Manufacturer != caller {
		return interfaces.ErrUnauthorized
	}

	result, err := l.accreditation.TestResultDetails(equipmentID)
	if err != nil {
		return err
	}
	if result.Status != interfaces.StatusApproved {
		return interfaces.ErrInvalidState
	}
	if result.CAB != cab {
		return interfaces.ErrUnauthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.requests[equipmentID]; exists {
		return interfaces.ErrAlreadyExists
	}

	request := &interfaces.CertificationRequest{
		EquipmentID:  equipmentID,
		Manufacturer: caller,
		CAB:          cab,
		Status:       interfaces.StatusPending,
		DocHash:      docHash,
		RequestedAt:  l.now().UTC(),
	}
	if err := l.store.PutCertification(*request); err != nil {
		return err
	}
	l.requests[equipmentID] = request
	l.order = append(l.order, equipmentID)

	l.log.Info("Certification requested",
		"equipment", equipmentID,
		"manufacturer", caller.String(),
		"cab", cab.String())
	return nil
}

// MakeCertificationDecision moves a Pending request to Approved or Denied.
// Certifier only.
func (l *CertificationLedger) MakeCertificationDecision(caller interfaces.Principal, equipmentID uint64, decision interfaces.Decision) error {
	if caller != l.certifier {
		return interfaces.ErrUnauthorized
	}
	if _, err := interfaces.ParseDecision(uint8(decision)); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	request, exists := l.requests[equipmentID]
	if !exists {
		return interfaces.ErrNotFound
	}
	if request.Status != interfaces.StatusPending {
		return interfaces.ErrInvalidState
	}

	updated := *request
	if decision == interfaces.DecisionApprove {
		updated.Status = interfaces.StatusApproved
	} else {
		updated.Status = interfaces.StatusDenied
	}
	if err := l.store.PutCertification(updated); err != nil {
		return err
	}
	*request = updated

	l.log.Info("Certification decision recorded",
		"equipment", equipmentID,
		"decision", decision.String())
	return nil
}

// UpdateCertification stages a replacement document hash on an Approved
// request. Requesting manufacturer only.
func (l *CertificationLedger) UpdateCertification(caller interfaces.Principal, equipmentID uint64, docHash interfaces.ContentHash) error {
	if err := docHash.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	request, exists := l.requests[equipmentID]
	if !exists {
		return interfaces.ErrNotFound
	}
	if request.Manufacturer != caller {
		return interfaces.ErrUnauthorized
	}
	if request.Status != interfaces.StatusApproved {
		return interfaces.ErrInvalidState
	}

	updated := *request
	updated.PendingUpdate = docHash
	if err := l.store.PutCertification(updated); err != nil {
		return err
	}
	*request = updated

	l.log.Info("Certification update staged", "equipment", equipmentID)
	return nil
}

// ConfirmUpdatedCertification commits or discards the staged hash.
// Certifier only.
func (l *CertificationLedger) ConfirmUpdatedCertification(caller interfaces.Principal, equipmentID uint64, decision interfaces.Decision) error {
	if caller != l.certifier {
		return interfaces.ErrUnauthorized
	}
	if _, err := interfaces.ParseDecision(uint8(decision)); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	request, exists := l.requests[equipmentID]
	if !exists {
		return interfaces.ErrNotFound
	}
	if request.PendingUpdate == "" {
		return interfaces.ErrInvalidState
	}

	updated := *request
	if decision == interfaces.DecisionApprove {
		updated.DocHash = updated.PendingUpdate
	}
	updated.PendingUpdate = ""
	if err := l.store.PutCertification(updated); err != nil {
		return err
	}
	*request = updated

	l.log.Info("Certification update confirmed",
		"equipment", equipmentID,
		"decision", decision.String())
	return nil
}

// SubmitAuditReport appends an audit entry to an Approved request. The
// caller must be the CAB recorded on the request. Appends are unlimited and
// cause no state transition; each entry's chain hash commits to its
// predecessor, so earlier entries cannot be altered or reordered
// undetected.
func (l *CertificationLedger) SubmitAuditReport(caller interfaces.Principal, equipmentID uint64, docHash interfaces.ContentHash) error {
	if err := docHash.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	request, exists := l.requests[equipmentID]
	if !exists {
		return interfaces.ErrNotFound
	}
	if request.CAB != caller {
		return interfaces.ErrUnauthorized
	}
	if request.Status != interfaces.StatusApproved {
		return interfaces.ErrInvalidState
	}

	var prev string
	if n := len(request.AuditLog); n > 0 {
		prev = request.AuditLog[n-1].ChainHash
	}
	entry := interfaces.AuditEntry{
		Auditor:   caller,
		DocHash:   docHash,
		Timestamp: l.now().UTC(),
	}
	entry.ChainHash = chainHash(prev, entry)

	if err := l.store.AppendAuditEntry(equipmentID, entry); err != nil {
		return err
	}
	request.AuditLog = append(request.AuditLog, entry)

	l.log.Info("Audit report submitted",
		"equipment", equipmentID,
		"auditor", caller.String(),
		"entries", len(request.AuditLog))
	return nil
}

// chainHash computes the keccak commitment of an audit entry and its
// predecessor's chain hash.
func chainHash(prev string, entry interfaces.AuditEntry) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(prev))
	h.Write(entry.Auditor.Bytes())
	h.Write([]byte(entry.DocHash))

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(entry.Timestamp.UnixNano()))
	h.Write(ts[:])

	return hex.EncodeToString(h.Sum(nil))
}

// RevokeCertification moves an Approved request to Revoked, terminally.
// Certifier only.
func (l *CertificationLedger) RevokeCertification(caller interfaces.Principal, equipmentID uint64) error {
	if caller != l.certifier {
		return interfaces.ErrUnauthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	request, exists := l.requests[equipmentID]
	if !exists {
		return interfaces.ErrNotFound
	}
	if request.Status != interfaces.StatusApproved {
		return interfaces.ErrInvalidState
	}

	updated := *request
	updated.Status = interfaces.StatusRevoked
	updated.Revoked = true
	updated.PendingUpdate = ""
	if err := l.store.PutCertification(updated); err != nil {
		return err
	}
	*request = updated

	l.log.Info("Certification revoked", "equipment", equipmentID)
	return nil
}

// CertificationRequestDetails returns the request for an equipment id.
func (l *CertificationLedger) CertificationRequestDetails(equipmentID uint64) (interfaces.CertificationRequest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	request, exists := l.requests[equipmentID]
	if !exists {
		return interfaces.CertificationRequest{}, interfaces.ErrNotFound
	}
	return copyRequest(request), nil
}

// AuditLog returns the request's audit entries in submission order.
func (l *CertificationLedger) AuditLog(equipmentID uint64) ([]interfaces.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	request, exists := l.requests[equipmentID]
	if !exists {
		return nil, interfaces.ErrNotFound
	}
	out := make([]interfaces.AuditEntry, len(request.AuditLog))
	copy(out, request.AuditLog)
	return out, nil
}

// ListPendingCertifications returns all requests awaiting a certifier
// decision, in submission order.
func (l *CertificationLedger) ListPendingCertifications() []interfaces.CertificationRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []interfaces.CertificationRequest
	for _, id := range l.order {
		if request := l.requests[id]; request.Status == interfaces.StatusPending {
			out = append(out, copyRequest(request))
		}
	}
	return out
}

func copyRequest(r *interfaces.CertificationRequest) interfaces.CertificationRequest {
	out := *r
	out.AuditLog = make([]interfaces.AuditEntry, len(r.AuditLog))
	copy(out.AuditLog, r.AuditLog)
	return out
}

func (l *CertificationLedger) restore(requests []interfaces.CertificationRequest) {
	for i := range requests {
		r := requests[i]
		l.requests[r.EquipmentID] = &r
		l.order = append(l.order, r.EquipmentID)
	}
}
