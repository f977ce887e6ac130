package models

import (
	"fmt"

	restate "github.com/restatedev/sdk-go"
)

// Terminal errors are the protocol's Failure outcomes: they are not
// retried by the substrate and surface at the caller's join position.

func ErrPermissionDenied(caller string) error {
	return restate.TerminalError(fmt.Errorf("permission denied: %q is not the owning identity", caller), 403)
}

func ErrInsufficientSupply(requested, available uint64) error {
	return restate.TerminalError(fmt.Errorf("insufficient supply: requested %d, %d unallocated", requested, available), 409)
}

func ErrInsufficientBalance(required, available uint64) error {
	return restate.TerminalError(fmt.Errorf("insufficient balance: need %d sub-units, have %d", required, available), 412)
}

func ErrNotAuthorized(sellerID string) error {
	return restate.TerminalError(fmt.Errorf("seller %q is not authorized", sellerID), 403)
}

func ErrNoStorage(account string) error {
	return restate.TerminalError(fmt.Errorf("account %q has no registered storage", account), 404)
}

// ErrInternalProtocolViolation reports a settlement invoked with the
// wrong outcome count. This is a substrate invariant breach, not a
// business failure.
func ErrInternalProtocolViolation(got int) error {
	return restate.TerminalError(fmt.Errorf("internal protocol violation: settlement requires exactly 3 outcomes, got %d", got), 500)
}
