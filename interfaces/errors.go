package interfaces

import (
	"errors"
	"fmt"
)

// Error kinds reported by engine operations. Every failure is local to the
// invoking operation: the engine never leaves partially-applied state and
// never retries on the caller's behalf.
var (
	// ErrUnauthorized is returned when the caller lacks the required role
	// or identity match for an operation.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrNotFound is returned when a referenced key does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned on a duplicate creation attempt.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidState is returned when an operation is not valid for the
	// record's current lifecycle state.
	ErrInvalidState = errors.New("operation invalid for current state")

	// ErrPaymentMismatch is returned when the payment attached to
	// SelectBestBid does not equal the best bid's amount.
	ErrPaymentMismatch = errors.New("attached payment does not match required amount")

	// ErrNoBids is returned when SelectBestBid is called on an auction
	// with an empty bid list.
	ErrNoBids = errors.New("auction has no bids")

	// ErrAuctionClosed is returned when bidding or settlement is attempted
	// on an auction that is no longer open. It matches ErrInvalidState
	// under errors.Is.
	ErrAuctionClosed = fmt.Errorf("auction closed: %w", ErrInvalidState)

	// ErrNoWinner is returned when the winning CAB is requested before the
	// auction has closed.
	ErrNoWinner = errors.New("auction has no winner yet")

	// ErrDuplicateIdentity is returned when registering an identity that
	// is already present under a conflicting role.
	ErrDuplicateIdentity = errors.New("identity already registered")

	// ErrNotRegistered is returned when an identity-registry operation
	// references an unknown participant.
	ErrNotRegistered = errors.New("identity not registered")
)
