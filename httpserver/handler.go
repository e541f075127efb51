package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/certeq/equipment-certification-backend/engine"
	"github.com/certeq/equipment-certification-backend/interfaces"
	"github.com/certeq/equipment-certification-backend/metrics"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Handler processes HTTP requests for the certification engine. Mutating
// endpoints authenticate the caller by recovering the signer of the request
// digest; read endpoints are public.
type Handler struct {
	engine  *engine.Engine
	storage interfaces.StorageBackend
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewHandler creates a handler over the given engine. The storage backend
// serves the document upload/fetch boundary and may be nil when the
// deployment carries no document store; m may be nil to disable metrics.
func NewHandler(eng *engine.Engine, storage interfaces.StorageBackend, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{
		engine:  eng,
		storage: storage,
		metrics: m,
		log:     log,
	}
}

func (h *Handler) observe(operation string, start time.Time, err error) {
	if h.metrics != nil {
		h.metrics.ObserveOperation(operation, start, err)
	}
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.log.Error("Failed to read request body", "err", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// writeError maps engine errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, ErrMissingSignature):
		status = http.StatusUnauthorized
	case errors.Is(err, interfaces.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, interfaces.ErrNotFound), errors.Is(err, interfaces.ErrNotRegistered):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrAlreadyExists), errors.Is(err, interfaces.ErrDuplicateIdentity):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrInvalidState),
		errors.Is(err, interfaces.ErrNoBids),
		errors.Is(err, interfaces.ErrNoWinner):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrPaymentMismatch):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeSigned reads the body, authenticates the caller and unmarshals the
// payload into req. Returns false after writing the error response.
func (h *Handler) decodeSigned(w http.ResponseWriter, r *http.Request, req any) (interfaces.Principal, []byte, bool) {
	body, ok := h.readBody(w, r)
	if !ok {
		return interfaces.Principal{}, nil, false
	}

	caller, err := callerFromRequest(r, body)
	if err != nil {
		h.log.Error("Request authentication failed", "err", err, "path", r.URL.Path)
		h.writeError(w, err)
		return interfaces.Principal{}, nil, false
	}

	if req != nil {
		if err := json.Unmarshal(body, req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return interfaces.Principal{}, nil, false
		}
	}
	return caller, body, true
}

func pathID(r *http.Request, name string) (uint64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

type idResponse struct {
	ID uint64 `json:"id"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// Identity endpoints.

type registerManufacturerRequest struct {
	Addr interfaces.Principal `json:"addr"`
}

// HandleRegisterManufacturer admits a manufacturer. Registrar only.
//
// URL format: POST /api/identity/manufacturers
func (h *Handler) HandleRegisterManufacturer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req registerManufacturerRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	err := h.engine.Identity.RegisterManufacturer(caller, req.Addr)
	h.observe("RegisterManufacturer", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "registered"})
}

type registerCABRequest struct {
	Name string               `json:"name"`
	Addr interfaces.Principal `json:"addr"`
}

// HandleRegisterCAB admits a conformity assessment body. Registrar only.
//
// URL format: POST /api/identity/cabs
func (h *Handler) HandleRegisterCAB(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req registerCABRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	err := h.engine.Identity.RegisterCAB(caller, req.Name, req.Addr)
	h.observe("RegisterCAB", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "registered"})
}

type updateCABDetailsRequest struct {
	Details string `json:"details"`
}

// HandleUpdateCABDetails sets the calling CAB's own details pointer.
//
// URL format: POST /api/identity/cabs/details
func (h *Handler) HandleUpdateCABDetails(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req updateCABDetailsRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	details, err := interfaces.NewContentHash(req.Details)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Identity.UpdateCABDetails(caller, details)
	h.observe("UpdateCABDetails", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "updated"})
}

type accreditCABRequest struct {
	Addr       interfaces.Principal `json:"addr"`
	Accredited bool                 `json:"accredited"`
}

// HandleAccreditCAB sets the accreditation flag of a CAB. Registrar only.
//
// URL format: POST /api/identity/cabs/accredit
func (h *Handler) HandleAccreditCAB(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req accreditCABRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	err := h.engine.Identity.AccreditCAB(caller, req.Addr, req.Accredited)
	h.observe("AccreditCAB", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "updated"})
}

// HandleListCABs returns all registered CABs.
//
// URL format: GET /api/identity/cabs
func (h *Handler) HandleListCABs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Identity.ListCABs())
}

// HandleCABDetails returns one CAB record.
//
// URL format: GET /api/identity/cabs/{addr}
func (h *Handler) HandleCABDetails(w http.ResponseWriter, r *http.Request) {
	addr, err := interfaces.NewPrincipalFromHex(r.PathValue("addr"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, err := h.engine.Identity.CABDetails(addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// Equipment endpoints.

type registerEquipmentRequest struct {
	Kind    uint8  `json:"kind"`
	DocHash string `json:"doc_hash"`
}

// HandleRegisterEquipment registers an equipment item for the calling
// manufacturer and returns its id.
//
// URL format: POST /api/equipment
func (h *Handler) HandleRegisterEquipment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req registerEquipmentRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	kind, err := interfaces.ParseEquipmentKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	docHash, err := interfaces.NewContentHash(req.DocHash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.engine.Catalog.RegisterEquipment(caller, kind, docHash)
	h.observe("RegisterEquipment", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, idResponse{ID: id})
}

// HandleEquipmentDetails returns one equipment record.
//
// URL format: GET /api/equipment/{id}
func (h *Handler) HandleEquipmentDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	eq, err := h.engine.Catalog.EquipmentDetails(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, eq)
}

// HandleListEquipment returns equipment, optionally filtered by
// manufacturer.
//
// URL format: GET /api/equipment?manufacturer=0x...
func (h *Handler) HandleListEquipment(w http.ResponseWriter, r *http.Request) {
	if manufacturer := r.URL.Query().Get("manufacturer"); manufacturer != "" {
		addr, err := interfaces.NewPrincipalFromHex(manufacturer)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeJSON(w, http.StatusOK, h.engine.Catalog.ListEquipmentByManufacturer(addr))
		return
	}

	count := h.engine.Catalog.EquipmentCount()
	items := make([]interfaces.Equipment, 0, count)
	for id := uint64(1); id <= count; id++ {
		if eq, err := h.engine.Catalog.EquipmentDetails(id); err == nil {
			items = append(items, eq)
		}
	}
	h.writeJSON(w, http.StatusOK, items)
}

// Auction endpoints.

type createAuctionRequest struct {
	EquipmentID uint64 `json:"equipment_id"`
}

// HandleCreateAuction opens a reverse auction for the caller's equipment.
//
// URL format: POST /api/auctions
func (h *Handler) HandleCreateAuction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req createAuctionRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	id, err := h.engine.Market.CreateAuction(caller, req.EquipmentID)
	h.observe("CreateAuction", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, idResponse{ID: id})
}

type submitBidRequest struct {
	Amount uint64 `json:"amount"`
}

// HandleSubmitBid places a bid from an accredited CAB.
//
// URL format: POST /api/auctions/{id}/bids
func (h *Handler) HandleSubmitBid(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	auctionID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req submitBidRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	bidID, err := h.engine.Market.SubmitBid(caller, auctionID, interfaces.Currency(req.Amount))
	h.observe("SubmitBid", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, idResponse{ID: bidID})
}

type selectBestBidRequest struct {
	Payment uint64 `json:"payment"`
}

// HandleSelectBestBid closes an auction and settles payment to the winner.
// The attached payment must equal the best bid exactly.
//
// URL format: POST /api/auctions/{id}/select
func (h *Handler) HandleSelectBestBid(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	auctionID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req selectBestBidRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	best, err := h.engine.Market.SelectBestBid(caller, auctionID, interfaces.Currency(req.Payment))
	h.observe("SelectBestBid", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, best)
}

// HandleAuctionDetails returns one auction record with its bids.
//
// URL format: GET /api/auctions/{id}
func (h *Handler) HandleAuctionDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	auction, err := h.engine.Market.AuctionDetails(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, auction)
}

// HandleBidDetails returns one bid of an auction.
//
// URL format: GET /api/auctions/{id}/bids/{bid_id}
func (h *Handler) HandleBidDetails(w http.ResponseWriter, r *http.Request) {
	auctionID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	bidID, err := pathID(r, "bid_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bid, err := h.engine.Market.BidDetails(auctionID, bidID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bid)
}

// HandleListOpenAuctions returns all auctions still accepting bids.
//
// URL format: GET /api/auctions
func (h *Handler) HandleListOpenAuctions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Market.ListOpenAuctions())
}

// HandleWinningCAB returns the CAB selected to test an equipment item.
//
// URL format: GET /api/equipment/{id}/winner
func (h *Handler) HandleWinningCAB(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	winner, err := h.engine.Market.WinningCAB(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interfaces.Principal{"cab": winner})
}

// HandleBalance returns a principal's settlement balance.
//
// URL format: GET /api/balances/{addr}
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := interfaces.NewPrincipalFromHex(r.PathValue("addr"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]uint64{"balance": uint64(h.engine.Settlement.BalanceOf(addr))})
}

// Accreditation endpoints.

type submitTestResultsRequest struct {
	EquipmentID uint64 `json:"equipment_id"`
	DocHash     string `json:"doc_hash"`
}

// HandleSubmitTestResults records test results from the equipment's winning
// CAB.
//
// URL format: POST /api/accreditations
func (h *Handler) HandleSubmitTestResults(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req submitTestResultsRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	docHash, err := interfaces.NewContentHash(req.DocHash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Accreditation.SubmitTestResults(caller, req.EquipmentID, docHash)
	h.observe("SubmitTestResults", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "submitted"})
}

type decisionRequest struct {
	Decision uint8 `json:"decision"`
}

// HandleAccreditationDecision resolves a pending accreditation. Registrar
// only. Decision wire values: 1 approves, 2 denies.
//
// URL format: POST /api/accreditations/{id}/decision
func (h *Handler) HandleAccreditationDecision(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req decisionRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	decision, err := interfaces.ParseDecision(req.Decision)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Accreditation.MakeAccreditationDecision(caller, equipmentID, decision)
	h.observe("MakeAccreditationDecision", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: decision.String()})
}

type updateDocRequest struct {
	DocHash string `json:"doc_hash"`
}

// HandleUpdateAccreditation stages a replacement document on an approved
// accreditation. Registrar only.
//
// URL format: POST /api/accreditations/{id}/update
func (h *Handler) HandleUpdateAccreditation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req updateDocRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	docHash, err := interfaces.NewContentHash(req.DocHash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Accreditation.UpdateAccreditation(caller, equipmentID, docHash)
	h.observe("UpdateAccreditation", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "staged"})
}

// HandleConfirmUpdatedAccreditation commits or discards a staged
// accreditation update. Registrar only.
//
// URL format: POST /api/accreditations/{id}/confirm
func (h *Handler) HandleConfirmUpdatedAccreditation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req decisionRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	decision, err := interfaces.ParseDecision(req.Decision)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Accreditation.ConfirmUpdatedAccreditation(caller, equipmentID, decision)
	h.observe("ConfirmUpdatedAccreditation", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: decision.String()})
}

// HandleRevokeAccreditation terminally revokes an approved accreditation.
// Registrar only.
//
// URL format: POST /api/accreditations/{id}/revoke
func (h *Handler) HandleRevokeAccreditation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	caller, _, ok := h.decodeSigned(w, r, nil)
	if !ok {
		return
	}

	err = h.engine.Accreditation.RevokeAccreditation(caller, equipmentID)
	h.observe("RevokeAccreditation", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "revoked"})
}

// HandleTestResultDetails returns the accreditation record for an equipment
// item.
//
// URL format: GET /api/accreditations/{id}
func (h *Handler) HandleTestResultDetails(w http.ResponseWriter, r *http.Request) {
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.engine.Accreditation.TestResultDetails(equipmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleListPendingAccreditations returns accreditations awaiting a
// registrar decision.
//
// URL format: GET /api/accreditations/pending
func (h *Handler) HandleListPendingAccreditations(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Accreditation.ListPendingAccreditations())
}

// Certification endpoints.

type requestCertificationRequest struct {
	EquipmentID uint64               `json:"equipment_id"`
	CAB         interfaces.Principal `json:"cab"`
	DocHash     string               `json:"doc_hash"`
}

// HandleRequestCertification opens a certification request for the caller's
// equipment. The named CAB must match the approved accreditation.
//
// URL format: POST /api/certifications
func (h *Handler) HandleRequestCertification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req requestCertificationRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	docHash, err := interfaces.NewContentHash(req.DocHash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Certification.RequestCertification(caller, req.EquipmentID, req.CAB, docHash)
	h.observe("RequestCertification", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "requested"})
}

// HandleCertificationDecision resolves a pending certification request.
// Certifier only.
//
// URL format: POST /api/certifications/{id}/decision
func (h *Handler) HandleCertificationDecision(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req decisionRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	decision, err := interfaces.ParseDecision(req.Decision)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Certification.MakeCertificationDecision(caller, equipmentID, decision)
	h.observe("MakeCertificationDecision", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: decision.String()})
}

// HandleUpdateCertification stages a replacement document on an approved
// certification. Requesting manufacturer only.
//
// URL format: POST /api/certifications/{id}/update
func (h *Handler) HandleUpdateCertification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req updateDocRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	docHash, err := interfaces.NewContentHash(req.DocHash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Certification.UpdateCertification(caller, equipmentID, docHash)
	h.observe("UpdateCertification", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "staged"})
}

// HandleConfirmUpdatedCertification commits or discards a staged
// certification update. Certifier only.
//
// URL format: POST /api/certifications/{id}/confirm
func (h *Handler) HandleConfirmUpdatedCertification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req decisionRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	decision, err := interfaces.ParseDecision(req.Decision)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Certification.ConfirmUpdatedCertification(caller, equipmentID, decision)
	h.observe("ConfirmUpdatedCertification", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: decision.String()})
}

type auditReportRequest struct {
	DocHash string `json:"doc_hash"`
}

// HandleSubmitAuditReport appends an audit entry to an approved
// certification. The caller must be the request's CAB.
//
// URL format: POST /api/certifications/{id}/audit
func (h *Handler) HandleSubmitAuditReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req auditReportRequest
	caller, _, ok := h.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	docHash, err := interfaces.NewContentHash(req.DocHash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Certification.SubmitAuditReport(caller, equipmentID, docHash)
	h.observe("SubmitAuditReport", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "recorded"})
}

// HandleRevokeCertification terminally revokes an approved certification.
// Certifier only.
//
// URL format: POST /api/certifications/{id}/revoke
func (h *Handler) HandleRevokeCertification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	caller, _, ok := h.decodeSigned(w, r, nil)
	if !ok {
		return
	}

	err = h.engine.Certification.RevokeCertification(caller, equipmentID)
	h.observe("RevokeCertification", start, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "revoked"})
}

// HandleCertificationDetails returns the certification request for an
// equipment item.
//
// URL format: GET /api/certifications/{id}
func (h *Handler) HandleCertificationDetails(w http.ResponseWriter, r *http.Request) {
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := h.engine.Certification.CertificationRequestDetails(equipmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// HandleAuditLog returns a certification's audit entries in submission
// order.
//
// URL format: GET /api/certifications/{id}/audit
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	equipmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log, err := h.engine.Certification.AuditLog(equipmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, log)
}

// HandleListPendingCertifications returns requests awaiting a certifier
// decision.
//
// URL format: GET /api/certifications/pending
func (h *Handler) HandleListPendingCertifications(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Certification.ListPendingCertifications())
}

// Document endpoints.

// HandleStoreDocument stores a raw document and returns its content
// address. Uploads are signed so they stay attributable, but any principal
// may store.
//
// URL format: POST /api/documents/{kind}
func (h *Handler) HandleStoreDocument(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		http.Error(w, "document storage not configured", http.StatusServiceUnavailable)
		return
	}

	kind, err := interfaces.ParseDocumentKind(r.PathValue("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty document body", http.StatusBadRequest)
		return
	}

	caller, err := callerFromRequest(r, body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	id, err := h.storage.Store(r.Context(), body, kind)
	if err != nil {
		h.log.Error("Failed to store document", "err", err, "kind", kind.String(), "caller", caller.String())
		http.Error(w, "document store failed", http.StatusBadGateway)
		return
	}
	if h.metrics != nil {
		h.metrics.DocumentsStored.WithLabelValues(kind.String()).Inc()
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":           id.String(),
		"content_hash": id.ContentHash().String(),
	})
}

// HandleFetchDocument returns a stored document's raw bytes.
//
// URL format: GET /api/documents/{kind}/{id}
func (h *Handler) HandleFetchDocument(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		http.Error(w, "document storage not configured", http.StatusServiceUnavailable)
		return
	}

	kind, err := interfaces.ParseDocumentKind(r.PathValue("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := interfaces.NewDocumentIDFromHex(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := h.storage.Fetch(r.Context(), id, kind)
	if err != nil {
		if errors.Is(err, interfaces.ErrDocumentNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		h.log.Error("Failed to fetch document", "err", err, "id", id.String())
		http.Error(w, "document fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
