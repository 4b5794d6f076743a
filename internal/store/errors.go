package store

import "errors"

// Typed outcomes: constraint violations are reported, not thrown as
// opaque errors.
var (
	// ErrDuplicateMessage names the duplicate-provider-id outcome.
	// InsertMessage does not return it: it reports a duplicate as
	// inserted=false with a nil error.
	ErrDuplicateMessage = errors.New("store: duplicate provider message id")
	// ErrNoRuleSet is returned by GetRuleSet before the first PutRuleSet call.
	ErrNoRuleSet = errors.New("store: rule set not initialised")
	// ErrVersionConflict is returned by PutRuleSet when newVersion does not
	// strictly exceed the current version.
	ErrVersionConflict = errors.New("store: rule set version must strictly increase")
)
