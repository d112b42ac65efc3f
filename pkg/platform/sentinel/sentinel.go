package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (wrapped with
// entity context) so services can translate them into domain errors without
// importing every store package.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: guarded write lost to a concurrent update
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
