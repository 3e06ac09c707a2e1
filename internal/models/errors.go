package models

import "errors"

var (
	ErrCapacity            = errors.New("slot table at capacity")
	ErrSymbolHeld          = errors.New("symbol already held")
	ErrNotFound            = errors.New("position not found")
	ErrNotOpen             = errors.New("position is not open")
	ErrCloseInFlight       = errors.New("close already in flight")
	ErrManualPending       = errors.New("manual close pending")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidSettings     = errors.New("invalid trading settings")
	ErrTradingPaused       = errors.New("trading is paused")
)
