/*
Package httpserver implements the HTTP API of the equipment certification engine.

It exposes one endpoint per engine operation, a document upload/fetch boundary
backed by the configured storage backends, and health and diagnostics
endpoints. Mutating endpoints are authenticated by a secp256k1 signature over
the request digest; the recovered address is the caller principal and all role
checks happen inside the engine.

# Request Authentication

Callers sign keccak256(method, "\n", path, "\n", body) with their secp256k1
key and send the 65-byte signature hex encoded in the X-Certeq-Signature
header. Binding method and path to the digest prevents replaying a captured
signature against another endpoint. Read endpoints are public and unsigned.

# API Endpoints

Identity:

  - POST /api/identity/manufacturers - Register a manufacturer (registrar)
  - POST /api/identity/cabs - Register a CAB (registrar)
  - POST /api/identity/cabs/details - Update the calling CAB's details
  - POST /api/identity/cabs/accredit - Set a CAB's accreditation flag (registrar)
  - GET  /api/identity/cabs - List registered CABs
  - GET  /api/identity/cabs/{addr} - Get one CAB record

Equipment and auctions:

  - POST /api/equipment - Register equipment (manufacturer)
  - GET  /api/equipment - List equipment, ?manufacturer=0x... to filter
  - GET  /api/equipment/{id} - Get one equipment record
  - GET  /api/equipment/{id}/winner - Get the selected testing CAB
  - POST /api/auctions - Open a reverse auction (equipment owner)
  - GET  /api/auctions - List open auctions
  - GET  /api/auctions/{id} - Get one auction with its bids
  - POST /api/auctions/{id}/bids - Place a bid (accredited CAB)
  - GET  /api/auctions/{id}/bids/{bid_id} - Get one bid
  - POST /api/auctions/{id}/select - Close the auction and settle payment
  - GET  /api/balances/{addr} - Get a settlement balance

Accreditation and certification follow the same shape under
/api/accreditations and /api/certifications, with decision, update, confirm
and revoke sub-resources keyed by equipment id. Audit reports append under
POST /api/certifications/{id}/audit.

Documents:

  - POST /api/documents/{kind} - Store a raw document, returns its content address
  - GET  /api/documents/{kind}/{id} - Fetch a stored document

Diagnostics:

  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

# Example Usage

	cfg := &httpserver.HTTPServerConfig{
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
		Log:         logger,

		DrainDuration:            30 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              5 * time.Second,
		WriteTimeout:             10 * time.Second,
	}

	m := metrics.New(common.PackageName)
	handler := httpserver.NewHandler(eng, storageBackend, m, logger)

	server, err := httpserver.New(cfg, handler, m)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
