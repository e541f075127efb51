package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/certeq/equipment-certification-backend/interfaces"
	"github.com/certeq/equipment-certification-backend/store"
)

// AccreditationLedger records test results submitted by auction-selected
// CABs and the registrar's approve/deny decisions. One record exists per
// equipment id; records are never deleted, Denied and Revoked are terminal
// states. It implements interfaces.AccreditationLedger.
type AccreditationLedger struct {
	mu        sync.RWMutex
	registrar interfaces.Principal
	catalog   *EquipmentCatalog
	market    *AuctionMarket

	results map[uint64]*interfaces.TestResult
	order   []uint64

	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewAccreditationLedger creates a ledger over the given market and catalog.
func NewAccreditationLedger(registrar interfaces.Principal, catalog *EquipmentCatalog, market *AuctionMarket, st store.Store, log *slog.Logger) *AccreditationLedger {
	return &AccreditationLedger{
		registrar: registrar,
		catalog:   catalog,
		market:    market,
		results:   make(map[uint64]*interfaces.TestResult),
		store:     st,
		log:       log,
		now:       time.Now,
	}
}

// SubmitTestResults creates the Pending record for an equipment item. The
// caller must be the CAB that won the equipment's auction; before the
// auction closes there is no winner and submission fails with ErrNoWinner.
func (l *AccreditationLedger) SubmitTestResults(caller interfaces.Principal, equipmentID uint64, docHash interfaces.ContentHash) error {
	if err := docHash.Validate(); err != nil {
		return err
	}
	if _, err := l.catalog.EquipmentDetails(equipmentID); err != nil {
		return err
	}
	winner, err := l.market.WinningCAB(equipmentID)
	if err != nil {
		return err
	}
	if caller != winner {
		return interfaces.ErrUnauthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.results[equipmentID]; exists {
		return interfaces.ErrAlreadyExists
	}

	result := &interfaces.TestResult{
		EquipmentID: equipmentID,
		CAB:         caller,
		DocHash:     docHash,
		Status:      interfaces.StatusPending,
		SubmittedAt: l.now().UTC(),
	}
	if err := l.store.PutTestResult(*result); err != nil {
		return err
	}
	l.results[equipmentID] = result
	l.order = append(l.order, equipmentID)

	l.log.Info("Test results submitted", "equipment", equipmentID, "cab", caller.String())
	return nil
}

// MakeAccreditationDecision moves a Pending record to Approved or Denied.
// Registrar only.
func (l *AccreditationLedger) MakeAccreditationDecision(caller interfaces.Principal, equipmentID uint64, decision interfaces.Decision) error {
	if caller != l.registrar {
		return interfaces.ErrUnauthorized
	}
	if _, err := interfaces.ParseDecision(uint8(decision)); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	result, exists := l.results[equipmentID]
	if !exists {
		return interfaces.ErrNotFound
	}
	if result.Status != interfaces.StatusPending {
		return interfaces.ErrInvalidState
	}

	updated := *result
	if decision == interfaces.DecisionApprove {
		updated.Status = interfaces.StatusApproved
	} else {
		updated.Status = interfaces.StatusDenied
	}
	if err := l.store.PutTestResult(updated); err != nil {
		return err
	}
	*result = updated

	l.log.Info("Accreditation decision recorded",
		"equipment", equipmentID,
		"decision", decision.String())
	return nil
}

// UpdateAccreditation stages a replacement document hash on an Approved
// record without touching its committed state. Registrar only; the original
// submission is CAB-authored but updates mirror the source system's
// registrar-driven revision cycle.
func (l *AccreditationLedger) UpdateAccreditation(caller interfaces.Principal, equipmentID uint64, docHash interfaces.ContentHash) error {
	if caller != l.registrar {
		return interfaces.ErrUnauthorized
	}
	if err := docHash.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	result, exists := l.results[equipmentID]
	if !exists {
		return interfaces.ErrNotFound
	}
	if result.Status != interfaces.StatusApproved {
		return interfaces.ErrInvalidState
	}

	updated := *result
	updated.PendingUpdate = docHash
	if err := l.store.PutTestResult(updated); err != nil {
		return err
	}
	*result = updated

	l.log.Info("Accreditation update staged", "equipment", equipmentID)
	return nil
}

// ConfirmUpdatedAccreditation commits or discards the staged hash. On
// approve the staged hash becomes the record's committed hash; on deny it
// is dropped and the previously committed state is untouched. Registrar
// only.
func (l *AccreditationLedger) ConfirmUpdatedAccreditation(caller interfaces.Principal, equipmentID uint64, decision interfaces.Decision) error {
	if caller != l.registrar {
		return interfaces.ErrUnauthorized
	}
	if _, err := interfaces.ParseDecision(uint8(decision)); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	result, exists := l.results[equipmentID]
	if !exists {
		return interfaces.ErrNotFound
	}
	if result.PendingUpdate == "" {
		return interfaces.ErrInvalidState
	}

	updated := *result
	if decision == interfaces.DecisionApprove {
		updated.DocHash = updated.PendingUpdate
	}
	updated.PendingUpdate = ""
	if err := l.store.PutTestResult(updated); err != nil {
		return err
	}
	*result = updated

	l.log.Info("Accreditation update confirmed",
		"equipment", equipmentID,
		"decision", decision.String())
	return nil
}

// RevokeAccreditation moves an Approved record to Revoked, terminally. Any
// staged update is discarded. Registrar only.
func (l *AccreditationLedger) RevokeAccreditation(caller interfaces.Principal, equipmentID uint64) error {
	if caller != l.registrar {
		return interfaces.ErrUnauthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	result, exists := l.results[equipmentID]
	if !exists {
		return interfaces.ErrNotFound
	}
	if result.Status != interfaces.StatusApproved {
		return interfaces.ErrInvalidState
	}

	updated := *result
	updated.Status = interfaces.StatusRevoked
	updated.PendingUpdate = ""
	if err := l.store.PutTestResult(updated); err != nil {
		return err
	}
	*result = updated

	l.log.Info("Accreditation revoked", "equipment", equipmentID)
	return nil
}

// TestResultDetails returns the record for an equipment id.
func (l *AccreditationLedger) TestResultDetails(equipmentID uint64) (interfaces.TestResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result, exists := l.results[equipmentID]
	if !exists {
		return interfaces.TestResult{}, interfaces.ErrNotFound
	}
	return *result, nil
}

// ListPendingAccreditations returns all records awaiting a registrar
// decision, in submission order.
func (l *AccreditationLedger) ListPendingAccreditations() []interfaces.TestResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []interfaces.TestResult
	for _, id := range l.order {
		if result := l.results[id]; result.Status == interfaces.StatusPending {
			out = append(out, *result)
		}
	}
	return out
}

func (l *AccreditationLedger) restore(results []interfaces.TestResult) {
	for i := range results {
		r := results[i]
		l.results[r.EquipmentID] = &r
		l.order = append(l.order, r.EquipmentID)
	}
}
