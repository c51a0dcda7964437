package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidSide            = errors.New("invalid side")
	ErrInvalidLiquidity       = errors.New("invalid liquidity parameter")
	ErrMarketClosed           = errors.New("market closed")
	ErrAlreadyResolved        = errors.New("market already resolved")
	ErrNotResolved            = errors.New("market not resolved")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrVersionConflict        = errors.New("version conflict")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrLockHeld               = errors.New("lock already held")
)
