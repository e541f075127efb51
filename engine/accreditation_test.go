package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

const updatedDocHash = interfaces.ContentHash("QmUpdatedDocumentHash234567890abcdefghijklmnop")

func TestSubmitTestResults(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupEquipment(t, eng)

	// No auction yet.
	err := eng.Accreditation.SubmitTestResults(cabOne, equipmentID, testDocHash)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	err = eng.Accreditation.SubmitTestResults(cabOne, 99, testDocHash)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	setupAccreditedCAB(t, eng, "cab-one", cabOne)
	setupAccreditedCAB(t, eng, "cab-two", cabTwo)
	auctionID, err := eng.Market.CreateAuction(manufacturer, equipmentID)
	require.NoError(t, err)
	_, err = eng.Market.SubmitBid(cabOne, auctionID, 100)
	require.NoError(t, err)

	// No winner while the auction is open.
	err = eng.Accreditation.SubmitTestResults(cabOne, equipmentID, testDocHash)
	assert.ErrorIs(t, err, interfaces.ErrNoWinner)

	_, err = eng.Market.SelectBestBid(manufacturer, auctionID, 100)
	require.NoError(t, err)

	// Only the winning CAB may submit.
	err = eng.Accreditation.SubmitTestResults(cabTwo, equipmentID, testDocHash)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	require.NoError(t, eng.Accreditation.SubmitTestResults(cabOne, equipmentID, testDocHash))

	result, err := eng.Accreditation.TestResultDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusPending, result.Status)
	assert.Equal(t, cabOne, result.CAB)

	// One submission per equipment item.
	err = eng.Accreditation.SubmitTestResults(cabOne, equipmentID, testDocHash)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyExists)
}

func setupPendingAccreditation(t *testing.T, eng *Engine) uint64 {
	t.Helper()
	equipmentID := setupEquipment(t, eng)
	setupSettledAuction(t, eng, equipmentID)
	require.NoError(t, eng.Accreditation.SubmitTestResults(cabOne, equipmentID, testDocHash))
	return equipmentID
}

func TestMakeAccreditationDecision(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupPendingAccreditation(t, eng)

	assert.ErrorIs(t, eng.Accreditation.MakeAccreditationDecision(stranger, equipmentID, interfaces.DecisionApprove), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, eng.Accreditation.MakeAccreditationDecision(registrar, 99, interfaces.DecisionApprove), interfaces.ErrNotFound)
	assert.Error(t, eng.Accreditation.MakeAccreditationDecision(registrar, equipmentID, interfaces.Decision(7)))

	require.NoError(t, eng.Accreditation.MakeAccreditationDecision(registrar, equipmentID, interfaces.DecisionApprove))
	result, err := eng.Accreditation.TestResultDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusApproved, result.Status)

	// Decisions resolve Pending records only.
	assert.ErrorIs(t, eng.Accreditation.MakeAccreditationDecision(registrar, equipmentID, interfaces.DecisionDeny), interfaces.ErrInvalidState)
}

func TestAccreditationDenyIsTerminal(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupPendingAccreditation(t, eng)

	require.NoError(t, eng.Accreditation.MakeAccreditationDecision(registrar, equipmentID, interfaces.DecisionDeny))

	assert.ErrorIs(t, eng.Accreditation.UpdateAccreditation(registrar, equipmentID, updatedDocHash), interfaces.ErrInvalidState)
	assert.ErrorIs(t, eng.Accreditation.RevokeAccreditation(registrar, equipmentID), interfaces.ErrInvalidState)
}

func TestAccreditationUpdateCycle(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupPendingAccreditation(t, eng)

	// Updates only touch Approved records.
	assert.ErrorIs(t, eng.Accreditation.UpdateAccreditation(registrar, equipmentID, updatedDocHash), interfaces.ErrInvalidState)

	require.NoError(t, eng.Accreditation.MakeAccreditationDecision(registrar, equipmentID, interfaces.DecisionApprove))

	// Confirming with nothing staged is invalid.
	assert.ErrorIs(t, eng.Accreditation.ConfirmUpdatedAccreditation(registrar, equipmentID, interfaces.DecisionApprove), interfaces.ErrInvalidState)

	assert.ErrorIs(t, eng.Accreditation.UpdateAccreditation(cabOne, equipmentID, updatedDocHash), interfaces.ErrUnauthorized)
	require.NoError(t, eng.Accreditation.UpdateAccreditation(registrar, equipmentID, updatedDocHash))

	// Staged hash does not replace the committed one until confirmation.
	result, err := eng.Accreditation.TestResultDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, testDocHash, result.DocHash)
	assert.Equal(t, updatedDocHash, result.PendingUpdate)

	// Deny discards the staged hash.
	require.NoError(t, eng.Accreditation.ConfirmUpdatedAccreditation(registrar, equipmentID, interfaces.DecisionDeny))
	result, err = eng.Accreditation.TestResultDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, testDocHash, result.DocHash)
	assert.Empty(t, result.PendingUpdate)

	// Approve commits it.
	require.NoError(t, eng.Accreditation.UpdateAccreditation(registrar, equipmentID, updatedDocHash))
	require.NoError(t, eng.Accreditation.ConfirmUpdatedAccreditation(registrar, equipmentID, interfaces.DecisionApprove))
	result, err = eng.Accreditation.TestResultDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, updatedDocHash, result.DocHash)
	assert.Empty(t, result.PendingUpdate)
	assert.Equal(t, interfaces.StatusApproved, result.Status)
}

func TestRevokeAccreditation(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupPendingAccreditation(t, eng)

	// Only Approved records can be revoked.
	assert.ErrorIs(t, eng.Accreditation.RevokeAccreditation(registrar, equipmentID), interfaces.ErrInvalidState)

	require.NoError(t, eng.Accreditation.MakeAccreditationDecision(registrar, equipmentID, interfaces.DecisionApprove))
	require.NoError(t, eng.Accreditation.UpdateAccreditation(registrar, equipmentID, updatedDocHash))

	assert.ErrorIs(t, eng.Accreditation.RevokeAccreditation(cabOne, equipmentID), interfaces.ErrUnauthorized)
	require.NoError(t, eng.Accreditation.RevokeAccreditation(registrar, equipmentID))

	result, err := eng.Accreditation.TestResultDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusRevoked, result.Status)
	assert.Empty(t, result.PendingUpdate)

	// Revoked is terminal.
	assert.ErrorIs(t, eng.Accreditation.RevokeAccreditation(registrar, equipmentID), interfaces.ErrInvalidState)
	assert.ErrorIs(t, eng.Accreditation.UpdateAccreditation(registrar, equipmentID, updatedDocHash), interfaces.ErrInvalidState)
}

func TestListPendingAccreditations(t *testing.T) {
	eng := newTestEngine(t)
	equipmentID := setupPendingAccreditation(t, eng)

	pending := eng.Accreditation.ListPendingAccreditations()
	require.Len(t, pending, 1)
	assert.Equal(t, equipmentID, pending[0].EquipmentID)

	require.NoError(t, eng.Accreditation.MakeAccreditationDecision(registrar, equipmentID, interfaces.DecisionApprove))
	assert.Empty(t, eng.Accreditation.ListPendingAccreditations())
}
