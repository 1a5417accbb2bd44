package orders

import "errors"

var (
	// ErrNotFound: a referenced customer, warehouse, item, order or distance does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput: non-positive amount, out-of-range coordinates, unknown operation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict: a decrease would drive a line below zero, or the line is missing.
	ErrConflict = errors.New("conflict with current warehouse state")
	// ErrUnfulfillable: no ranked warehouse holds a sufficient line.
	ErrUnfulfillable = errors.New("no warehouse holds sufficient stock")
	ErrAlreadyExists = errors.New("already exists")
)
