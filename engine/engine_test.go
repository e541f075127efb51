package engine

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certeq/equipment-certification-backend/interfaces"
	"github.com/certeq/equipment-certification-backend/store"
)

// Fixed test principals. The last byte disambiguates.
var (
	registrar    = testAddr(0x01)
	certifier    = testAddr(0x02)
	manufacturer = testAddr(0x10)
	cabOne       = testAddr(0x20)
	cabTwo       = testAddr(0x21)
	cabThree     = testAddr(0x22)
	stranger     = testAddr(0xff)
)

const testDocHash = interfaces.ContentHash("QmTestDocumentHash1234567890abcdefghijklmnopq")

func testAddr(b byte) interfaces.Principal {
	var p interfaces.Principal
	p[19] = b
	return p
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(Config{
		Registrar: registrar,
		Certifier: certifier,
		Store:     store.NewNopStore(),
		Log:       testLogger(),
	})
	require.NoError(t, err)
	return eng
}

// setupAccreditedCAB registers and accredits a CAB through the registrar.
func setupAccreditedCAB(t *testing.T, eng *Engine, name string, addr interfaces.Principal) {
	t.Helper()
	require.NoError(t, eng.Identity.RegisterCAB(registrar, name, addr))
	require.NoError(t, eng.Identity.AccreditCAB(registrar, addr, true))
}

// setupEquipment registers the test manufacturer and one equipment item.
func setupEquipment(t *testing.T, eng *Engine) uint64 {
	t.Helper()
	require.NoError(t, eng.Identity.RegisterManufacturer(registrar, manufacturer))
	id, err := eng.Catalog.RegisterEquipment(manufacturer, interfaces.KindA, testDocHash)
	require.NoError(t, err)
	return id
}

// setupSettledAuction runs an auction with cabOne winning at amount 100.
func setupSettledAuction(t *testing.T, eng *Engine, equipmentID uint64) uint64 {
	t.Helper()
	setupAccreditedCAB(t, eng, "cab-one", cabOne)
	auctionID, err := eng.Market.CreateAuction(manufacturer, equipmentID)
	require.NoError(t, err)
	_, err = eng.Market.SubmitBid(cabOne, auctionID, 100)
	require.NoError(t, err)
	_, err = eng.Market.SelectBestBid(manufacturer, auctionID, 100)
	require.NoError(t, err)
	return auctionID
}

func TestNewEngineValidation(t *testing.T) {
	_, err := New(Config{Certifier: certifier})
	assert.Error(t, err)

	_, err = New(Config{Registrar: registrar})
	assert.Error(t, err)

	_, err = New(Config{Registrar: registrar, Certifier: registrar})
	assert.Error(t, err)

	eng, err := New(Config{Registrar: registrar, Certifier: certifier, Log: testLogger()})
	require.NoError(t, err)
	assert.NotNil(t, eng)
}

// TestFullLifecycle walks one equipment item through the complete workflow:
// identity setup, registration, auction, accreditation, certification,
// audit and revocation.
func TestFullLifecycle(t *testing.T) {
	eng := newTestEngine(t)

	// Identity setup
	require.NoError(t, eng.Identity.RegisterManufacturer(registrar, manufacturer))
	setupAccreditedCAB(t, eng, "cab-one", cabOne)
	setupAccreditedCAB(t, eng, "cab-two", cabTwo)

	// Equipment registration
	equipmentID, err := eng.Catalog.RegisterEquipment(manufacturer, interfaces.KindB, testDocHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), equipmentID)

	// Reverse auction, lowest bid wins
	auctionID, err := eng.Market.CreateAuction(manufacturer, equipmentID)
	require.NoError(t, err)
	_, err = eng.Market.SubmitBid(cabOne, auctionID, 300)
	require.NoError(t, err)
	_, err = eng.Market.SubmitBid(cabTwo, auctionID, 200)
	require.NoError(t, err)

	best, err := eng.Market.SelectBestBid(manufacturer, auctionID, 200)
	require.NoError(t, err)
	assert.Equal(t, cabTwo, best.CAB)
	assert.Equal(t, interfaces.Currency(200), eng.Settlement.BalanceOf(cabTwo))

	winner, err := eng.Market.WinningCAB(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, cabTwo, winner)

	// Accreditation
	require.NoError(t, eng.Accreditation.SubmitTestResults(cabTwo, equipmentID, testDocHash))
	require.NoError(t, eng.Accreditation.MakeAccreditationDecision(registrar, equipmentID, interfaces.DecisionApprove))

	// Certification
	require.NoError(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabTwo, testDocHash))
	require.NoError(t, eng.Certification.MakeCertificationDecision(certifier, equipmentID, interfaces.DecisionApprove))

	// Audit trail
	require.NoError(t, eng.Certification.SubmitAuditReport(cabTwo, equipmentID, testDocHash))
	auditLog, err := eng.Certification.AuditLog(equipmentID)
	require.NoError(t, err)
	assert.Len(t, auditLog, 1)
	assert.Equal(t, cabTwo, auditLog[0].Auditor)

	// Revocation is terminal
	require.NoError(t, eng.Certification.RevokeCertification(certifier, equipmentID))
	request, err := eng.Certification.CertificationRequestDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusRevoked, request.Status)
	assert.True(t, request.Revoked)
}

// TestEngineRestore verifies that a fresh engine over the same database sees
// the full workflow state written by its predecessor.
func TestEngineRestore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	st, err := store.OpenSQLite(dbPath)
	require.NoError(t, err)

	eng, err := New(Config{Registrar: registrar, Certifier: certifier, Store: st, Log: testLogger()})
	require.NoError(t, err)

	require.NoError(t, eng.Identity.RegisterManufacturer(registrar, manufacturer))
	setupAccreditedCAB(t, eng, "cab-one", cabOne)

	equipmentID, err := eng.Catalog.RegisterEquipment(manufacturer, interfaces.KindA, testDocHash)
	require.NoError(t, err)
	auctionID, err := eng.Market.CreateAuction(manufacturer, equipmentID)
	require.NoError(t, err)
	_, err = eng.Market.SubmitBid(cabOne, auctionID, 150)
	require.NoError(t, err)
	_, err = eng.Market.SelectBestBid(manufacturer, auctionID, 150)
	require.NoError(t, err)
	require.NoError(t, eng.Accreditation.SubmitTestResults(cabOne, equipmentID, testDocHash))
	require.NoError(t, eng.Accreditation.MakeAccreditationDecision(registrar, equipmentID, interfaces.DecisionApprove))
	require.NoError(t, eng.Certification.RequestCertification(manufacturer, equipmentID, cabOne, testDocHash))
	require.NoError(t, eng.Certification.MakeCertificationDecision(certifier, equipmentID, interfaces.DecisionApprove))
	require.NoError(t, eng.Certification.SubmitAuditReport(cabOne, equipmentID, testDocHash))
	require.NoError(t, st.Close())

	// Restart over the same database.
	st2, err := store.OpenSQLite(dbPath)
	require.NoError(t, err)
	defer st2.Close()

	restored, err := New(Config{Registrar: registrar, Certifier: certifier, Store: st2, Log: testLogger()})
	require.NoError(t, err)

	assert.True(t, restored.Identity.IsManufacturer(manufacturer))
	assert.True(t, restored.Identity.IsAccreditedCAB(cabOne))

	eq, err := restored.Catalog.EquipmentDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, manufacturer, eq.Manufacturer)

	winner, err := restored.Market.WinningCAB(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, cabOne, winner)
	assert.Equal(t, interfaces.Currency(150), restored.Settlement.BalanceOf(cabOne))

	result, err := restored.Accreditation.TestResultDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusApproved, result.Status)

	request, err := restored.Certification.CertificationRequestDetails(equipmentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusApproved, request.Status)
	require.Len(t, request.AuditLog, 1)
	assert.Equal(t, cabOne, request.AuditLog[0].Auditor)

	// Allocators continue past restored ids.
	nextEq, err := restored.Catalog.RegisterEquipment(manufacturer, interfaces.KindA, testDocHash)
	require.NoError(t, err)
	assert.Equal(t, equipmentID+1, nextEq)
}
