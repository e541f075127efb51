// Package engine implements the equipment certification workflow engine:
// identity registry, equipment catalog, reverse-auction market, settlement
// ledger, accreditation ledger and certification ledger.
//
// Every mutating operation is a whole-operation atomic transaction: the full
// set of checks and writes for one call either commits under the owning
// component's lock or nothing changes and the caller observes an error.
// Reads never block reads, and operations on different components proceed
// concurrently.
//
// Authorization is capability-style: the registrar and certifier principals
// are passed in at construction and checked per call; manufacturer and CAB
// roles are derived from identity-registry membership at the time of the
// call. No role is carried inside a request.
//
// Records are never deleted. Denied and Revoked are terminal states kept for
// audit, and the certification audit trail is append-only with each entry
// hash-chained to its predecessor.
package engine
