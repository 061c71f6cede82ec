package types

import "errors"

// Domain specific errors. Every operation aborts atomically and surfaces one
// of these sentinels, wrapped with context; callers match with errors.Is.
var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrUnauthorized      = errors.New("caller not authorized for this operation")
	ErrNotFound          = errors.New("record not found at derived address")
	ErrDuplicateRecord   = errors.New("record already exists at derived address")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidState      = errors.New("record is in the wrong lifecycle state")
	ErrScheduleNotDue    = errors.New("payment is not due yet")
	ErrExternalFailure   = errors.New("yield source call failed")
)
