package client

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of failed catalog requests.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassStatus represents any other non-2xx response that survived
	// redirect handling.
	ErrorClassStatus ErrorClass = "status"

	// ErrorClassNetwork represents connection failures (refused, reset, DNS, proxy).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents a request that exceeded its timeout.
	ErrorClassTimeout ErrorClass = "timeout"
)

// ErrContractViolation is matched by every *ContractError via errors.Is.
var ErrContractViolation = errors.New("catalog response contract violated")

// FetchError is a transient miss: no page was obtained this round and the
// same offset should be requested again.
type FetchError struct {
	Class      ErrorClass
	StatusCode int
	Offset     int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s error (status %d) at offset %d: %s: %v",
			e.Class, e.StatusCode, e.Offset, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog %s error (status %d) at offset %d: %s",
		e.Class, e.StatusCode, e.Offset, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ContractError reports a response body that does not match the expected
// shape. Retrying cannot fix it.
type ContractError struct {
	Offset int
	Err    error
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	return fmt.Sprintf("catalog response at offset %d failed validation: %v", e.Offset, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ContractError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrContractViolation.
func (e *ContractError) Is(target error) bool {
	return target == ErrContractViolation
}

// isTransientClass determines whether a failure of the given class leaves the
// cursor in place for another attempt.
func isTransientClass(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassServer, ErrorClassStatus:
		return true
	case ErrorClassNetwork, ErrorClassTimeout:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a transient miss.
func IsTransient(err error) bool {
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		return false
	}
	return isTransientClass(fetchErr.Class)
}

// IsContractViolation reports whether err is a contract violation.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrContractViolation)
}
