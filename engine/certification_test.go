package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

// setupApprovedAccreditation walks an equipment item up to an approved
// accreditation with cabOne as the winning CAB.
func setupApprovedAccreditation(t *testing.T, eng *Engine) uint64 {
	t.Helper()
	equipmentID := setupEquipment(t, eng)
	setupSettledAuction(t, eng, equipmentID)
	require.NoError(t, eng.Accreditation.SubmitTestResults(cabOne, equipmentID, testDocHash))
	require.NoError(t, eng.Accreditation.MakeAccreditationDecision(registrar, equipmentID, interfaces.DecisionApprove))
	return equipmentID
}

func setupApprovedCertification(t *testing.T, eng *Engine) uint64 {
	t.Helper()
	equipmentID := setupApprovedAccreditation(t, eng)
	require.NoError(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabOne, testDocHash))
	require.NoError(t, eng.Certification.MakeCertificationDecision(certifier, equipmentID, interfaces.DecisionApprove))
	return equipmentID
}

func TestRequestCertification(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupApprovedAccreditation(t, eng)

	assert.ErrorIs(t, eng.Certification.RequestCertification(stranger, equipmentID, cabOne, testDocHash), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, eng.Certification.RequestCertification(manufacturer, 99, cabOne, testDocHash), interfaces.ErrNotFound)

	// The named CAB must match the accreditation record.
	assert.ErrorIs(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabTwo, testDocHash), interfaces.ErrUnauthorized)

	require.NoError(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabOne, testDocHash))
	request, err := eng.Certification.CertificationRequestDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusPending, request.Status)
	assert.Equal(t, manufacturer, request.Manufacturer)
	assert.Equal(t, cabOne, request.CAB)

	assert.ErrorIs(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabOne, testDocHash), interfaces.ErrAlreadyExists)
}

func TestRequestCertificationRequiresApprovedAccreditation(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupEquipment(t, eng)
	setupSettledAuction(t, eng, equipmentID)

	// No test results on record yet.
	assert.ErrorIs(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabOne, testDocHash), interfaces.ErrNotFound)

	require.NoError(t, eng.Accreditation.SubmitTestResults(cabOne, equipmentID, testDocHash))
	assert.ErrorIs(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabOne, testDocHash), interfaces.ErrInvalidState)

	// A revoked accreditation no longer supports certification.
	require.NoError(t, eng.Accreditation.MakeAccreditationDecision(registrar, equipmentID, interfaces.DecisionApprove))
	require.NoError(t, eng.Accreditation.RevokeAccreditation(registrar, equipmentID))
	assert.ErrorIs(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabOne, testDocHash), interfaces.ErrInvalidState)
}

func TestMakeCertificationDecision(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupApprovedAccreditation(t, eng)
	require.NoError(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabOne, testDocHash))

	// The registrar is not the certifier.
	assert.ErrorIs(t, eng.Certification.MakeCertificationDecision(registrar, equipmentID, interfaces.DecisionApprove), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, eng.Certification.MakeCertificationDecision(certifier, 99, interfaces.DecisionApprove), interfaces.ErrNotFound)

	require.NoError(t, eng.Certification.MakeCertificationDecision(certifier, equipmentID, interfaces.DecisionApprove))
	request, err := eng.Certification.CertificationRequestDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusApproved, request.Status)

	assert.ErrorIs(t, eng.Certification.MakeCertificationDecision(certifier, equipmentID, interfaces.DecisionDeny), interfaces.ErrInvalidState)
}

func TestCertificationUpdateCycle(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupApprovedCertification(t, eng)

	// Updates are manufacturer-authored, confirmation is certifier-authored.
	assert.ErrorIs(t, eng.Certification.UpdateCertification(cabOne, equipmentID, updatedDocHash), interfaces.ErrUnauthorized)
	require.NoError(t, eng.Certification.UpdateCertification(manufacturer, equipmentID, updatedDocHash))

	assert.ErrorIs(t, eng.Certification.ConfirmUpdatedCertification(manufacturer, equipmentID, interfaces.DecisionApprove), interfaces.ErrUnauthorized)

	require.NoError(t, eng.Certification.ConfirmUpdatedCertification(certifier, equipmentID, interfaces.DecisionApprove))
	request, err := eng.Certification.CertificationRequestDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, updatedDocHash, request.DocHash)
	assert.Empty(t, request.PendingUpdate)

	// Deny discards the staged hash.
	require.NoError(t, eng.Certification.UpdateCertification(manufacturer, equipmentID, testDocHash))
	require.NoError(t, eng.Certification.ConfirmUpdatedCertification(certifier, equipmentID, interfaces.DecisionDeny))
	request, err = eng.Certification.CertificationRequestDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, updatedDocHash, request.DocHash)

	// Nothing staged, nothing to confirm.
	assert.ErrorIs(t, eng.Certification.ConfirmUpdatedCertification(certifier, equipmentID, interfaces.DecisionApprove), interfaces.ErrInvalidState)
}

func TestSubmitAuditReport(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupApprovedAccreditation(t, eng)
	require.NoError(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabOne, testDocHash))

	// Audits only land on Approved requests.
	assert.ErrorIs(t, eng.Certification.SubmitAuditReport(cabOne, equipmentID, testDocHash), interfaces.ErrInvalidState)

	require.NoError(t, eng.Certification.MakeCertificationDecision(certifier, equipmentID, interfaces.DecisionApprove))

	// Only the request's CAB may audit.
	assert.ErrorIs(t, eng.Certification.SubmitAuditReport(stranger, equipmentID, testDocHash), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, eng.Certification.SubmitAuditReport(manufacturer, equipmentID, testDocHash), interfaces.ErrUnauthorized)

	// Appends are unlimited.
	require.NoError(t, eng.Certification.SubmitAuditReport(cabOne, equipmentID, testDocHash))
	require.NoError(t, eng.Certification.SubmitAuditReport(cabOne, equipmentID, updatedDocHash))
	require.NoError(t, eng.Certification.SubmitAuditReport(cabOne, equipmentID, testDocHash))

	auditLog, err := eng.Certification.AuditLog(equipmentID)
	require.NoError(t, err)
	require.Len(t, auditLog, 3)

	// The request stays Approved throughout.
	request, err := eng.Certification.CertificationRequestDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusApproved, request.Status)
}

func TestAuditChainIntegrity(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupApprovedCertification(t, eng)

	require.NoError(t, eng.Certification.SubmitAuditReport(cabOne, equipmentID, testDocHash))
	require.NoError(t, eng.Certification.SubmitAuditReport(cabOne, equipmentID, updatedDocHash))

	auditLog, err := eng.Certification.AuditLog(equipmentID)
	require.NoError(t, err)
	require.Len(t, auditLog, 2)

	// Each entry's hash recomputes from its content and its predecessor.
	assert.Equal(t, chainHash("", auditLog[0]), auditLog[0].ChainHash)
	assert.Equal(t, chainHash(auditLog[0].ChainHash, auditLog[1]), auditLog[1].ChainHash)
	assert.NotEqual(t, auditLog[0].ChainHash, auditLog[1].ChainHash)

	// Tampering with an earlier entry breaks the chain.
	tampered := auditLog[0]
	tampered.DocHash = updatedDocHash
	assert.NotEqual(t, auditLog[0].ChainHash, chainHash("", tampered))
}

func TestRevokeCertification(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupApprovedCertification(t, eng)

	assert.ErrorIs(t, eng.Certification.RevokeCertification(registrar, equipmentID), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, eng.Certification.RevokeCertification(certifier, 99), interfaces.ErrNotFound)

	require.NoError(t, eng.Certification.RevokeCertification(certifier, equipmentID))
	request, err := eng.Certification.CertificationRequestDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusRevoked, request.Status)
	assert.True(t, request.Revoked)

	// Revoked is terminal: no audits, updates or second revocation.
	assert.ErrorIs(t, eng.Certification.SubmitAuditReport(cabOne, equipmentID, testDocHash), interfaces.ErrInvalidState)
	assert.ErrorIs(t, eng.Certification.UpdateCertification(manufacturer, equipmentID, updatedDocHash), interfaces.ErrInvalidState)
	assert.ErrorIs(t, eng.Certification.RevokeCertification(certifier, equipmentID), interfaces.ErrInvalidState)
}

func TestListPendingCertifications(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupApprovedAccreditation(t, eng)
	require.NoError(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabOne, testDocHash))

	pending := eng.Certification.ListPendingCertifications()
	require.Len(t, pending, 1)
	assert.Equal(t, equipmentID, pending[0].EquipmentID)

	require.NoError(t, eng.Certification.MakeCertificationDecision(certifier, equipmentID, interfaces.DecisionDeny))
	assert.Empty(t, eng.Certification.ListPendingCertifications())
}
