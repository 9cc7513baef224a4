package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyResolved   = errors.New("market already resolved")
	ErrNotYetEnded       = errors.New("market has not ended")
	ErrAlreadyEnded      = errors.New("market already ended")
	ErrBelowMinimum      = errors.New("amount below minimum bet")
	ErrAboveMaximum      = errors.New("amount above maximum bet")
	ErrDeadlinePast      = errors.New("deadline must be in the future")
	ErrZeroPayout        = errors.New("no winnings to pay out")
	ErrAlreadyClaimed    = errors.New("winnings already claimed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrReentrantCall     = errors.New("reentrant call rejected")
	ErrFeeTooHigh        = errors.New("fee exceeds ceiling")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidSide       = errors.New("invalid side")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLockHeld          = errors.New("lock already held")
)
