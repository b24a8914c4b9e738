package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrLeverageExceeded   = errors.New("requested leverage exceeds maximum")
	ErrExecutionFailed    = errors.New("execution failed")
	ErrInvalidPosition    = errors.New("invalid position parameters")
	ErrInvalidTransition  = errors.New("invalid lifecycle transition")
	ErrCalculation        = errors.New("calculation failed")
)
