package httpserver

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

// SignatureHeader carries the hex-encoded secp256k1 signature over the
// request digest. Every state-changing endpoint requires it; the recovered
// address is the caller principal for the operation.
const SignatureHeader = "X-Certeq-Signature"

// ErrMissingSignature is returned when a mutating request omits the
// signature header.
var ErrMissingSignature = errors.New("missing request signature")

// RequestDigest computes the 32-byte digest a caller signs: the keccak256
// hash of method, path and body. Binding method and path keeps a captured
// signature from being replayed against a different endpoint.
func RequestDigest(method, path string, body []byte) []byte {
	return crypto.Keccak256([]byte(method), []byte("\n"), []byte(path), []byte("\n"), body)
}

// SignRequest produces the signature header value for a request.
func SignRequest(key *ecdsa.PrivateKey, method, path string, body []byte) (string, error) {
	sig, err := crypto.Sign(RequestDigest(method, path, body), key)
	if err != nil {
		return "", fmt.Errorf("signing request: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// RecoverSigner recovers the caller principal from a signature header value.
func RecoverSigner(method, path string, body []byte, sigHex string) (interfaces.Principal, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return interfaces.Principal{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != 65 {
		return interfaces.Principal{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}

	// Accept both 0/1 and legacy 27/28 recovery IDs.
	if sig[64] >= 27 {
		sig = append(append([]byte{}, sig[:64]...), sig[64]-27)
	}

	pubkey, err := crypto.SigToPub(RequestDigest(method, path, body), sig)
	if err != nil {
		return interfaces.Principal{}, fmt.Errorf("signature recovery failed: %w", err)
	}

	return interfaces.PrincipalFromAddress(crypto.PubkeyToAddress(*pubkey)), nil
}

// callerFromRequest authenticates a mutating request. The body must already
// be fully read so the digest matches what the client signed.
func callerFromRequest(r *http.Request, body []byte) (interfaces.Principal, error) {
	sigHex := r.Header.Get(SignatureHeader)
	if sigHex == "" {
		return interfaces.Principal{}, ErrMissingSignature
	}
	return RecoverSigner(r.Method, r.URL.Path, body, sigHex)
}
