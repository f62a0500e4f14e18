package serial

import (
	"errors"
	"fmt"
)

// Code classifies deserialization failures
type Code uint8

const (
	CodeMissingField Code = iota + 1 // a required field of a form is absent
	CodeKindMismatch                 // a node does not have the expected kind or type
	CodeCorrupt                      // the data can't be decoded or is inconsistent
	CodeUnknownClass                 // no builder is registered for the element class
)

func (c Code) String() string {
	switch c {
	case CodeMissingField:
		return "missing field"
	case CodeKindMismatch:
		return "kind mismatch"
	case CodeCorrupt:
		return "corrupt"
	case CodeUnknownClass:
		return "unknown class"
	default:
		return fmt.Sprintf("code(%d)", uint8(c))
	}
}

// ErrCyclicBuild is returned when a node is resolved while it is being built
var ErrCyclicBuild = errors.New("serial: node resolved during its own build")

// Error is a failed deserialization. It is fatal to the decoding attempt.
type Error struct {
	Code Code
	Node int // id of the offending node, -1 for the whole graph
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var node string
	if e.Node >= 0 {
		node = fmt.Sprintf(" (node %d)", e.Node)
	}
	if e.Err != nil {
		return fmt.Sprintf("serial: %s%s: %s: %v", e.Code, node, e.Msg, e.Err)
	}
	return fmt.Sprintf("serial: %s%s: %s", e.Code, node, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, node int, format string, args ...any) *Error {
	return &Error{Code: code, Node: node, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(code Code, node int, err error, format string, args ...any) *Error {
	return &Error{Code: code, Node: node, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsCode reports whether err is an *Error with the given code
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
