package dberr

import (
	"fmt"
)

// ConnectionError - pool initialization or lease failure, or an operation
// attempted while not connected.
type ConnectionError struct {
	message string
	err     error
}

// NewConnectionError - ConnectionError constructor.
func NewConnectionError(msg string, args ...any) *ConnectionError {
	return &ConnectionError{message: fmt.Sprintf(msg, args...)}
}

// NewConnectionErrorWrapper - ConnectionError constructor wrapping another error.
func NewConnectionErrorWrapper(err error, msg string, args ...any) *ConnectionError {
	return &ConnectionError{message: fmt.Sprintf(msg, args...), err: err}
}

func (e *ConnectionError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *ConnectionError) Unwrap() error {
	return e.err
}

// TransactionError - unknown or terminal handle, BEGIN failure, or an invalid
// savepoint name.
type TransactionError struct {
	message string
	err     error
}

// NewTransactionError - TransactionError constructor.
func NewTransactionError(msg string, args ...any) *TransactionError {
	return &TransactionError{message: fmt.Sprintf(msg, args...)}
}

// NewTransactionErrorWrapper - TransactionError constructor wrapping another error.
func NewTransactionErrorWrapper(err error, msg string, args ...any) *TransactionError {
	return &TransactionError{message: fmt.Sprintf(msg, args...), err: err}
}

func (e *TransactionError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *TransactionError) Unwrap() error {
	return e.err
}

// QueryError - statement execution failure, carrying the driver message.
type QueryError struct {
	message string
	err     error
}

// NewQueryError - QueryError constructor.
func NewQueryError(msg string, args ...any) *QueryError {
	return &QueryError{message: fmt.Sprintf(msg, args...)}
}

// NewQueryErrorWrapper - QueryError constructor wrapping another error.
func NewQueryErrorWrapper(err error, msg string, args ...any) *QueryError {
	return &QueryError{message: fmt.Sprintf(msg, args...), err: err}
}

func (e *QueryError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *QueryError) Unwrap() error {
	return e.err
}
