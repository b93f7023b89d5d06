package domain

import "errors"

// Ledger rejections. All recoverable; callers test with errors.Is and decide
// whether to log, alert or retry. No mutation happens on a rejected call.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicatePosition = errors.New("position already open for symbol")
	ErrPositionNotFound  = errors.New("no open position for symbol")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidPrice      = errors.New("invalid price")
)
