package services

import "errors"

var (
	// ErrUnknownPool is returned for a pool id outside the registered range.
	ErrUnknownPool = errors.New("unknown pool")

	// ErrInvalidAmount is returned where a positive amount is mandated.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrZeroTotalWeight is returned when accrual is attempted while the sum
	// of pool weights is zero.
	ErrZeroTotalWeight = errors.New("total reward weight is zero")

	// ErrInsufficientStake is returned when a withdrawal exceeds the staked
	// amount. No state changes in that case.
	ErrInsufficientStake = errors.New("withdraw amount exceeds staked amount")

	// ErrInvariantViolation indicates corrupted accounting state: a negative
	// pending reward or a backward-moving accumulator. It is never expected
	// in correct operation and is not recoverable.
	ErrInvariantViolation = errors.New("ledger invariant violation")
)
