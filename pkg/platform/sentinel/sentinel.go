package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so the ledger service can translate them into ledger errors:
// - ErrNotFound: row or record does not exist
// - ErrConflict: a unique key (transaction id or index) is already taken
// - ErrInvalidState: persisted state contradicts the requested write
// - ErrUnavailable: backend temporarily unavailable
//
// Validation failures never use these; see pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
