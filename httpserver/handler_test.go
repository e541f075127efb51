package httpserver

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certeq/equipment-certification-backend/engine"
	"github.com/certeq/equipment-certification-backend/interfaces"
	"github.com/certeq/equipment-certification-backend/storage"
	"github.com/certeq/equipment-certification-backend/store"
)

const testDocHash = "QmTestDocumentHash1234567890abcdefghijklmnopq"

type testServer struct {
	url       string
	http      *http.Client
	registrar *ecdsa.PrivateKey
	certifier *ecdsa.PrivateKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registrarKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	certifierKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{
		Registrar: interfaces.PrincipalFromAddress(crypto.PubkeyToAddress(registrarKey.PublicKey)),
		Certifier: interfaces.PrincipalFromAddress(crypto.PubkeyToAddress(certifierKey.PublicKey)),
		Store:     store.NewNopStore(),
		Log:       logger,
	})
	require.NoError(t, err)

	fileBackend, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)

	handler := NewHandler(eng, fileBackend, nil, logger)
	srv, err := New(&HTTPServerConfig{
		ListenAddr:   "127.0.0.1:0",
		Log:          logger,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, handler, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)

	return &testServer{
		url:       ts.URL,
		http:      ts.Client(),
		registrar: registrarKey,
		certifier: certifierKey,
	}
}

func principalOf(key *ecdsa.PrivateKey) interfaces.Principal {
	return interfaces.PrincipalFromAddress(crypto.PubkeyToAddress(key.PublicKey))
}

// postSigned signs the request body with key and returns the response. Pass
// a nil key to omit the signature header.
func (ts *testServer) postSigned(t *testing.T, key *ecdsa.PrivateKey, path string, payload any) *http.Response {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(http.MethodPost, ts.url+path, bytes.NewReader(body))
	require.NoError(t, err)
	if key != nil {
		sig, err := SignRequest(key, http.MethodPost, path, body)
		require.NoError(t, err)
		req.Header.Set(SignatureHeader, sig)
	}

	resp, err := ts.http.Do(req)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := ts.http.Get(ts.url + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, want, resp.StatusCode, "response body: %s", body)
}

func TestHandlerAuthentication(t *testing.T) {
	ts := newTestServer(t)
	manufacturerKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	payload := map[string]any{"addr": principalOf(manufacturerKey)}

	// Missing signature
	resp := ts.postSigned(t, nil, "/api/identity/manufacturers", payload)
	requireStatus(t, resp, http.StatusUnauthorized)

	// Wrong signer: authenticated but not the registrar.
	resp = ts.postSigned(t, manufacturerKey, "/api/identity/manufacturers", payload)
	requireStatus(t, resp, http.StatusForbidden)

	// Registrar succeeds.
	resp = ts.postSigned(t, ts.registrar, "/api/identity/manufacturers", payload)
	requireStatus(t, resp, http.StatusOK)
}

func TestHandlerErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	// Unknown resources map to 404.
	assert.Equal(t, http.StatusNotFound, ts.getJSON(t, "/api/equipment/7", nil))
	assert.Equal(t, http.StatusNotFound, ts.getJSON(t, "/api/auctions/7", nil))
	assert.Equal(t, http.StatusNotFound, ts.getJSON(t, "/api/certifications/7", nil))

	// Malformed ids and addresses map to 400.
	assert.Equal(t, http.StatusBadRequest, ts.getJSON(t, "/api/equipment/abc", nil))
	assert.Equal(t, http.StatusBadRequest, ts.getJSON(t, "/api/balances/zz", nil))

	// Duplicate identity maps to 409.
	cabKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	payload := map[string]any{"name": "cab-one", "addr": principalOf(cabKey)}
	requireStatus(t, ts.postSigned(t, ts.registrar, "/api/identity/cabs", payload), http.StatusOK)
	requireStatus(t, ts.postSigned(t, ts.registrar, "/api/identity/cabs", payload), http.StatusConflict)
}

// TestHandlerLifecycle drives the full workflow through the HTTP API.
func TestHandlerLifecycle(t *testing.T) {
	ts := newTestServer(t)

	manufacturerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	cabKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	cab := principalOf(cabKey)

	// Identity setup
	requireStatus(t, ts.postSigned(t, ts.registrar, "/api/identity/manufacturers",
		map[string]any{"addr": principalOf(manufacturerKey)}), http.StatusOK)
	requireStatus(t, ts.postSigned(t, ts.registrar, "/api/identity/cabs",
		map[string]any{"name": "cab-one", "addr": cab}), http.StatusOK)
	requireStatus(t, ts.postSigned(t, ts.registrar, "/api/identity/cabs/accredit",
		map[string]any{"addr": cab, "accredited": true}), http.StatusOK)

	var cabs []interfaces.CABInfo
	require.Equal(t, http.StatusOK, ts.getJSON(t, "/api/identity/cabs", &cabs))
	require.Len(t, cabs, 1)
	assert.True(t, cabs[0].Accredited)

	// Equipment
	var eqResp struct {
		ID uint64 `json:"id"`
	}
	resp := ts.postSigned(t, manufacturerKey, "/api/equipment",
		map[string]any{"kind": 0, "doc_hash": testDocHash})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&eqResp))
	require.Equal(t, uint64(1), eqResp.ID)

	// Auction
	var aucResp struct {
		ID uint64 `json:"id"`
	}
	resp = ts.postSigned(t, manufacturerKey, "/api/auctions", map[string]any{"equipment_id": eqResp.ID})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&aucResp))

	requireStatus(t, ts.postSigned(t, cabKey, fmt.Sprintf("/api/auctions/%d/bids", aucResp.ID),
		map[string]any{"amount": 120}), http.StatusOK)

	// Selecting with the wrong payment is rejected.
	requireStatus(t, ts.postSigned(t, manufacturerKey, fmt.Sprintf("/api/auctions/%d/select", aucResp.ID),
		map[string]any{"payment": 100}), http.StatusBadRequest)
	requireStatus(t, ts.postSigned(t, manufacturerKey, fmt.Sprintf("/api/auctions/%d/select", aucResp.ID),
		map[string]any{"payment": 120}), http.StatusOK)

	var winResp struct {
		CAB interfaces.Principal `json:"cab"`
	}
	require.Equal(t, http.StatusOK, ts.getJSON(t, fmt.Sprintf("/api/equipment/%d/winner", eqResp.ID), &winResp))
	assert.Equal(t, cab, winResp.CAB)

	var balResp struct {
		Balance uint64 `json:"balance"`
	}
	require.Equal(t, http.StatusOK, ts.getJSON(t, "/api/balances/"+cab.String(), &balResp))
	assert.Equal(t, uint64(120), balResp.Balance)

	// Accreditation
	requireStatus(t, ts.postSigned(t, cabKey, "/api/accreditations",
		map[string]any{"equipment_id": eqResp.ID, "doc_hash": testDocHash}), http.StatusOK)
	requireStatus(t, ts.postSigned(t, ts.registrar, fmt.Sprintf("/api/accreditations/%d/decision", eqResp.ID),
		map[string]any{"decision": 1}), http.StatusOK)

	// Certification
	requireStatus(t, ts.postSigned(t, manufacturerKey, "/api/certifications",
		map[string]any{"equipment_id": eqResp.ID, "cab": cab, "doc_hash": testDocHash}), http.StatusOK)
	requireStatus(t, ts.postSigned(t, ts.certifier, fmt.Sprintf("/api/certifications/%d/decision", eqResp.ID),
		map[string]any{"decision": 1}), http.StatusOK)

	// Audit trail
	requireStatus(t, ts.postSigned(t, cabKey, fmt.Sprintf("/api/certifications/%d/audit", eqResp.ID),
		map[string]any{"doc_hash": testDocHash}), http.StatusOK)

	var auditLog []interfaces.AuditEntry
	require.Equal(t, http.StatusOK, ts.getJSON(t, fmt.Sprintf("/api/certifications/%d/audit", eqResp.ID), &auditLog))
	require.Len(t, auditLog, 1)
	assert.Equal(t, cab, auditLog[0].Auditor)
	assert.NotEmpty(t, auditLog[0].ChainHash)
}

func TestDocumentEndpoints(t *testing.T) {
	ts := newTestServer(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	content := []byte("equipment technical file")
	path := "/api/documents/equipment"

	// Unsigned uploads are rejected.
	req, err := http.NewRequest(http.MethodPost, ts.url+path, bytes.NewReader(content))
	require.NoError(t, err)
	resp, err := ts.http.Do(req)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusUnauthorized)

	// Signed upload returns the content address.
	sig, err := SignRequest(key, http.MethodPost, path, content)
	require.NoError(t, err)
	req, err = http.NewRequest(http.MethodPost, ts.url+path, bytes.NewReader(content))
	require.NoError(t, err)
	req.Header.Set(SignatureHeader, sig)
	resp, err = ts.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stored struct {
		ID          string `json:"id"`
		ContentHash string `json:"content_hash"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stored))
	assert.Equal(t, interfaces.ComputeDocumentID(content).String(), stored.ID)

	// Fetch returns the exact bytes.
	fetched, err := ts.http.Get(ts.url + path + "/" + stored.ID)
	require.NoError(t, err)
	defer fetched.Body.Close()
	require.Equal(t, http.StatusOK, fetched.StatusCode)
	data, err := io.ReadAll(fetched.Body)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// Unknown document and kind.
	assert.Equal(t, http.StatusNotFound,
		ts.getJSON(t, path+"/"+interfaces.ComputeDocumentID([]byte("missing")).String(), nil))
	assert.Equal(t, http.StatusBadRequest, ts.getJSON(t, "/api/documents/bogus/"+stored.ID, nil))
}
