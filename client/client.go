// Package client provides a signing HTTP client for the equipment
// certification API. Each client instance holds one secp256k1 key and acts
// as that principal for every call.
package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certeq/equipment-certification-backend/httpserver"
	"github.com/certeq/equipment-certification-backend/interfaces"
)

// Client calls the certification API as a single principal.
type Client struct {
	baseURL string
	key     *ecdsa.PrivateKey
	http    *http.Client
}

// New creates a client for the API at baseURL, signing with key. A nil key
// produces a read-only client.
func New(baseURL string, key *ecdsa.PrivateKey) *Client {
	return &Client{
		baseURL: baseURL,
		key:     key,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Principal returns the address the client signs as.
func (c *Client) Principal() interfaces.Principal {
	if c.key == nil {
		return interfaces.Principal{}
	}
	return interfaces.PrincipalFromAddress(crypto.PubkeyToAddress(c.key.PublicKey))
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	if method != http.MethodGet {
		if c.key == nil {
			return fmt.Errorf("client has no signing key")
		}
		sig, err := httpserver.SignRequest(c.key, method, path, body)
		if err != nil {
			return err
		}
		req.Header.Set(httpserver.SignatureHeader, sig)
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, req, out any) error {
	var body []byte
	if req != nil {
		var err error
		body, err = json.Marshal(req)
		if err != nil {
			return err
		}
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

type idResponse struct {
	ID uint64 `json:"id"`
}

// Identity operations.

func (c *Client) RegisterManufacturer(ctx context.Context, addr interfaces.Principal) error {
	return c.post(ctx, "/api/identity/manufacturers", map[string]any{"addr": addr}, nil)
}

func (c *Client) RegisterCAB(ctx context.Context, name string, addr interfaces.Principal) error {
	return c.post(ctx, "/api/identity/cabs", map[string]any{"name": name, "addr": addr}, nil)
}

func (c *Client) UpdateCABDetails(ctx context.Context, details interfaces.ContentHash) error {
	return c.post(ctx, "/api/identity/cabs/details", map[string]any{"details": details.String()}, nil)
}

func (c *Client) AccreditCAB(ctx context.Context, addr interfaces.Principal, accredited bool) error {
	return c.post(ctx, "/api/identity/cabs/accredit", map[string]any{"addr": addr, "accredited": accredited}, nil)
}

func (c *Client) CABDetails(ctx context.Context, addr interfaces.Principal) (interfaces.CABInfo, error) {
	var info interfaces.CABInfo
	err := c.get(ctx, "/api/identity/cabs/"+addr.String(), &info)
	return info, err
}

func (c *Client) ListCABs(ctx context.Context) ([]interfaces.CABInfo, error) {
	var cabs []interfaces.CABInfo
	err := c.get(ctx, "/api/identity/cabs", &cabs)
	return cabs, err
}

// Equipment operations.

func (c *Client) RegisterEquipment(ctx context.Context, kind interfaces.EquipmentKind, docHash interfaces.ContentHash) (uint64, error) {
	var resp idResponse
	err := c.post(ctx, "/api/equipment", map[string]any{"kind": uint8(kind), "doc_hash": docHash.String()}, &resp)
	return resp.ID, err
}

func (c *Client) EquipmentDetails(ctx context.Context, id uint64) (interfaces.Equipment, error) {
	var eq interfaces.Equipment
	err := c.get(ctx, fmt.Sprintf("/api/equipment/%d", id), &eq)
	return eq, err
}

func (c *Client) WinningCAB(ctx context.Context, equipmentID uint64) (interfaces.Principal, error) {
	var resp struct {
		CAB interfaces.Principal `json:"cab"`
	}
	err := c.get(ctx, fmt.Sprintf("/api/equipment/%d/winner", equipmentID), &resp)
	return resp.CAB, err
}

// Auction operations.

func (c *Client) CreateAuction(ctx context.Context, equipmentID uint64) (uint64, error) {
	var resp idResponse
	err := c.post(ctx, "/api/auctions", map[string]any{"equipment_id": equipmentID}, &resp)
	return resp.ID, err
}

func (c *Client) SubmitBid(ctx context.Context, auctionID uint64, amount interfaces.Currency) (uint64, error) {
	var resp idResponse
	err := c.post(ctx, fmt.Sprintf("/api/auctions/%d/bids", auctionID), map[string]any{"amount": uint64(amount)}, &resp)
	return resp.ID, err
}

func (c *Client) SelectBestBid(ctx context.Context, auctionID uint64, payment interfaces.Currency) (interfaces.Bid, error) {
	var bid interfaces.Bid
	err := c.post(ctx, fmt.Sprintf("/api/auctions/%d/select", auctionID), map[string]any{"payment": uint64(payment)}, &bid)
	return bid, err
}

func (c *Client) AuctionDetails(ctx context.Context, auctionID uint64) (interfaces.Auction, error) {
	var auction interfaces.Auction
	err := c.get(ctx, fmt.Sprintf("/api/auctions/%d", auctionID), &auction)
	return auction, err
}

func (c *Client) Balance(ctx context.Context, addr interfaces.Principal) (interfaces.Currency, error) {
	var resp struct {
		Balance uint64 `json:"balance"`
	}
	err := c.get(ctx, "/api/balances/"+addr.String(), &resp)
	return interfaces.Currency(resp.Balance), err
}

// Accreditation operations.

func (c *Client) SubmitTestResults(ctx context.Context, equipmentID uint64, docHash interfaces.ContentHash) error {
	return c.post(ctx, "/api/accreditations", map[string]any{"equipment_id": equipmentID, "doc_hash": docHash.String()}, nil)
}

func (c *Client) MakeAccreditationDecision(ctx context.Context, equipmentID uint64, decision interfaces.Decision) error {
	return c.post(ctx, fmt.Sprintf("/api/accreditations/%d/decision", equipmentID), map[string]any{"decision": uint8(decision)}, nil)
}

func (c *Client) UpdateAccreditation(ctx context.Context, equipmentID uint64, docHash interfaces.ContentHash) error {
	return c.post(ctx, fmt.Sprintf("/api/accreditations/%d/update", equipmentID), map[string]any{"doc_hash": docHash.String()}, nil)
}

func (c *Client) ConfirmUpdatedAccreditation(ctx context.Context, equipmentID uint64, decision interfaces.Decision) error {
	return c.post(ctx, fmt.Sprintf("/api/accreditations/%d/confirm", equipmentID), map[string]any{"decision": uint8(decision)}, nil)
}

func (c *Client) RevokeAccreditation(ctx context.Context, equipmentID uint64) error {
	return c.post(ctx, fmt.Sprintf("/api/accreditations/%d/revoke", equipmentID), nil, nil)
}

func (c *Client) TestResultDetails(ctx context.Context, equipmentID uint64) (interfaces.TestResult, error) {
	var result interfaces.TestResult
	err := c.get(ctx, fmt.Sprintf("/api/accreditations/%d", equipmentID), &result)
	return result, err
}

// Certification operations.

func (c *Client) RequestCertification(ctx context.Context, equipmentID uint64, cab interfaces.Principal, docHash interfaces.ContentHash) error {
	return c.post(ctx, "/api/certifications", map[string]any{
		"equipment_id": equipmentID,
		"cab":          cab,
		"doc_hash":     docHash.String(),
	}, nil)
}

func (c *Client) MakeCertificationDecision(ctx context.Context, equipmentID uint64, decision interfaces.Decision) error {
	return c.post(ctx, fmt.Sprintf("/api/certifications/%d/decision", equipmentID), map[string]any{"decision": uint8(decision)}, nil)
}

func (c *Client) UpdateCertification(ctx context.Context, equipmentID uint64, docHash interfaces.ContentHash) error {
	return c.post(ctx, fmt.Sprintf("/api/certifications/%d/update", equipmentID), map[string]any{"doc_hash": docHash.String()}, nil)
}

func (c *Client) ConfirmUpdatedCertification(ctx context.Context, equipmentID uint64, decision interfaces.Decision) error {
	return c.post(ctx, fmt.Sprintf("/api/certifications/%d/confirm", equipmentID), map[string]any{"decision": uint8(decision)}, nil)
}

func (c *Client) SubmitAuditReport(ctx context.Context, equipmentID uint64, docHash interfaces.ContentHash) error {
	return c.post(ctx, fmt.Sprintf("/api/certifications/%d/audit", equipmentID), map[string]any{"doc_hash": docHash.String()}, nil)
}

func (c *Client) RevokeCertification(ctx context.Context, equipmentID uint64) error {
	return c.post(ctx, fmt.Sprintf("/api/certifications/%d/revoke", equipmentID), nil, nil)
}

func (c *Client) CertificationDetails(ctx context.Context, equipmentID uint64) (interfaces.CertificationRequest, error) {
	var req interfaces.CertificationRequest
	err := c.get(ctx, fmt.Sprintf("/api/certifications/%d", equipmentID), &req)
	return req, err
}

func (c *Client) AuditLog(ctx context.Context, equipmentID uint64) ([]interfaces.AuditEntry, error) {
	var log []interfaces.AuditEntry
	err := c.get(ctx, fmt.Sprintf("/api/certifications/%d/audit", equipmentID), &log)
	return log, err
}

// Document operations.

// StoreDocument uploads raw document bytes and returns the content hash to
// record on the ledgers.
func (c *Client) StoreDocument(ctx context.Context, kind interfaces.DocumentKind, data []byte) (interfaces.ContentHash, error) {
	var resp struct {
		ID          string `json:"id"`
		ContentHash string `json:"content_hash"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/documents/"+kind.String(), data, &resp); err != nil {
		return "", err
	}
	return interfaces.NewContentHash(resp.ContentHash)
}

func (c *Client) FetchDocument(ctx context.Context, kind interfaces.DocumentKind, id interfaces.DocumentID) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/documents/%s/%s", c.baseURL, kind.String(), id.String()), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch document: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
