package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Trace stores and other infrastructure
// adapters return these (wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: a unique constraint rejected the write
// - ErrAlreadyUsed: a lease or one-shot resource is held by someone else
// - ErrUnavailable: the store or broker could not be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
