package collection

import "errors"

var (
	// ErrNoSuchElement is returned when an element is required but the collection is empty
	ErrNoSuchElement = errors.New("collection: no such element")
	// ErrFull is returned when a bounded collection has no remaining capacity
	ErrFull = errors.New("collection: capacity exceeded")
	// ErrIndexOutOfRange is returned for list positions outside the list
	ErrIndexOutOfRange = errors.New("collection: index out of range")
	// ErrIllegalState is returned by Iterator.Remove without a current element
	ErrIllegalState = errors.New("collection: iterator has no current element")
	// ErrOptionType is returned when an option does not match the element type
	ErrOptionType = errors.New("collection: option does not match element type")
)
