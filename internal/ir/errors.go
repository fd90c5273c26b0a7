package ir

import "errors"

var (
	// ErrNotImplemented reports an operator or operand shape the backend
	// cannot lower.
	ErrNotImplemented = errors.New("not implemented")
	// ErrTypeConsistency reports a contract violation between compiler
	// phases, such as an unknown fragment kind.
	ErrTypeConsistency = errors.New("type consistency")
	// ErrInternal reports a failed internal assertion.
	ErrInternal = errors.New("internal error")
)
