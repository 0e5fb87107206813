// Package failure defines the error categories every core operation reports.
//
// Domain code wraps one of the sentinels with context, e.g.
//
//	fmt.Errorf("%w: budget line %s is held by another user", failure.ErrConflict, id)
//
// and callers branch with errors.Is or KindOf. Anything that does not wrap a
// sentinel is an infrastructure failure and classifies as KindInternal.
package failure

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidApprover = errors.New("invalid approver")
	ErrEmptySelection  = errors.New("empty selection")
	ErrBudgetExhausted = errors.New("budget exhausted")
	ErrConflict        = errors.New("conflict")
	ErrOutOfRange      = errors.New("out of range")
	ErrValidation      = errors.New("validation failed")
)

// Kind is a stable, machine-readable failure category.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindInvalidState    Kind = "invalid_state"
	KindInvalidApprover Kind = "invalid_approver"
	KindEmptySelection  Kind = "empty_selection"
	KindBudgetExhausted Kind = "budget_exhausted"
	KindConflict        Kind = "conflict"
	KindOutOfRange      Kind = "out_of_range"
	KindValidation      Kind = "validation"
	KindInternal        Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrInvalidState, KindInvalidState},
	{ErrInvalidApprover, KindInvalidApprover},
	{ErrEmptySelection, KindEmptySelection},
	{ErrBudgetExhausted, KindBudgetExhausted},
	{ErrConflict, KindConflict},
	{ErrOutOfRange, KindOutOfRange},
	{ErrValidation, KindValidation},
}

// KindOf classifies err. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}

	return KindInternal
}
