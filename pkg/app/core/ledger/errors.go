package ledger

import (
	"errors"

	"github.com/uhyunpark/hypermarket/pkg/app/core/safemath"
)

// Domain errors. Every engine operation fails with exactly one of these,
// wrapped with context; match with errors.Is.
var (
	ErrOwnerOnly            = errors.New("caller is not the owner")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrReserveCapExceeded   = errors.New("reserve cap exceeded")
	ErrListingCapExceeded   = errors.New("listing cap exceeded")
	ErrTransactionAborted   = errors.New("transaction aborted")

	// Arithmetic failures surface unchanged from safemath
	ErrOverflow       = safemath.ErrOverflow
	ErrUnderflow      = safemath.ErrUnderflow
	ErrDivisionByZero = safemath.ErrDivisionByZero
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrOwnerOnly, "OwnerOnly"},
	{ErrInvalidPrice, "InvalidPrice"},
	{ErrInvalidQuantity, "InvalidQuantity"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrInsufficientQuantity, "InsufficientQuantity"},
	{ErrReserveCapExceeded, "ReserveCapExceeded"},
	{ErrListingCapExceeded, "ListingCapExceeded"},
	{ErrTransactionAborted, "TransactionAborted"},
	{ErrOverflow, "Overflow"},
	{ErrUnderflow, "Underflow"},
	{ErrDivisionByZero, "DivisionByZero"},
}

// Kind returns the stable error code for err ("" for nil, "Internal" for
// anything that is not a ledger error, e.g. a storage failure).
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
