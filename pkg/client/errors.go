package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrMissingResourceType is returned when a request has no upstream function.
	ErrMissingResourceType = errors.New("resource type is required")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassAPI represents a success status carrying the error sentinel.
	ErrorClassAPI ErrorClass = "api"
)

// TransportError is returned when the upstream call failed or answered with
// a non-success status.
type TransportError struct {
	ResourceType string
	StatusCode   int
	Status       string
	Class        ErrorClass
	Err          error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d) for %s: %s: %v",
			e.Class, e.StatusCode, e.ResourceType, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d) for %s: %s",
		e.Class, e.StatusCode, e.ResourceType, e.Status)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is returned when the upstream answered with a success status but
// the payload carries the hard-error sentinel.
type APIError struct {
	ResourceType string
	Message      string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("Alpha Vantage API Error (%s): %s", e.ResourceType, e.Message)
}

// classifyStatus maps a non-success HTTP status to an error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx that were not followed
		return ErrorClassClient
	}
}

// ClassOf returns the class of an error produced by the client, or "" for
// errors it did not produce.
func ClassOf(err error) ErrorClass {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Class
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return ErrorClassAPI
	}
	return ""
}

// shouldRetry determines if an error class is worth retrying.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx will not change on retry
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	case ErrorClassAPI:
		// The error sentinel describes the request itself
		return false
	default:
		return false
	}
}
