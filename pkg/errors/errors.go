// Package errors provides custom error types for the quorum system.
// These errors enable better error handling, programmatic error checking,
// and improved debugging throughout the application.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is and As re-export the standard library matchers so callers need a
// single errors import.
var (
	Is = errors.Is
	As = errors.As
)

// Common sentinel errors for the quorum system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient indicates a connection failure or other I/O error worth retrying
	ErrTransient = errors.New("transient I/O error")

	// ErrUnavailable indicates that a remote service answered with a server error
	ErrUnavailable = errors.New("service unavailable")

	// ErrRateLimited indicates that the remote rate limit has been exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrStructure indicates a fetched document failed structural validation
	ErrStructure = errors.New("structural validation failed")

	// ErrNotVerified indicates that no verification probe corroborated a sample
	ErrNotVerified = errors.New("not verified")

	// ErrBatchFailed indicates that a batch ended with more failures than tolerated
	ErrBatchFailed = errors.New("batch failed")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// APIError represents an unexpected HTTP answer from the source or the overlay service
type APIError struct {
	Service    string // "source" or "overlay"
	StatusCode int
	Message    string
	URL        string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error from %s (status %d): %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error from %s: %s", e.Service, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *APIError) Is(target error) bool {
	if e.StatusCode == 429 {
		return target == ErrRateLimited
	}
	if e.StatusCode >= 500 {
		return target == ErrUnavailable
	}
	return false
}

// NewAPIError creates a new APIError
func NewAPIError(service string, statusCode int, url, message string) *APIError {
	return &APIError{
		Service:    service,
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// TransportError wraps a connection-level failure (dial, reset, read).
type TransportError struct {
	URL string
	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *TransportError) Is(target error) bool {
	return target == ErrTransient
}

// NewTransportError creates a new TransportError
func NewTransportError(url string, err error) *TransportError {
	return &TransportError{URL: url, Err: err}
}

// StructureError is returned when a fetched document does not look like the
// record that was asked for. The sample is rejected; the job keeps trying.
type StructureError struct {
	Target   string
	Selector string // missing element or mismatching marker
	Got      string
	Message  string
}

// Error implements the error interface
func (e *StructureError) Error() string {
	if e.Got != "" {
		return fmt.Sprintf("target %s: %s expected %q, got %q", e.Target, e.Selector, e.Target, e.Got)
	}
	if e.Message != "" {
		return fmt.Sprintf("target %s: %s not found: %s", e.Target, e.Selector, e.Message)
	}
	return fmt.Sprintf("target %s: %s not found", e.Target, e.Selector)
}

// Is implements errors.Is support
func (e *StructureError) Is(target error) bool {
	return target == ErrStructure
}

// NewStructureError creates a StructureError for a missing element
func NewStructureError(target, selector, message string) *StructureError {
	return &StructureError{Target: target, Selector: selector, Message: message}
}

// NewIdentityError creates a StructureError for an identity marker mismatch
func NewIdentityError(target, selector, got string) *StructureError {
	return &StructureError{Target: target, Selector: selector, Got: got}
}

// VerificationError carries the probe breadcrumb of a failed verification.
type VerificationError struct {
	Target    string
	Attempted []string
}

// Error implements the error interface
func (e *VerificationError) Error() string {
	if len(e.Attempted) == 0 {
		return fmt.Sprintf("target %s not verified", e.Target)
	}
	return fmt.Sprintf("target %s not verified after %d probes: %s",
		e.Target, len(e.Attempted), strings.Join(e.Attempted, " "))
}

// Is implements errors.Is support
func (e *VerificationError) Is(target error) bool {
	return target == ErrNotVerified
}

// NewVerificationError creates a new VerificationError
func NewVerificationError(target string, attempted []string) *VerificationError {
	return &VerificationError{Target: target, Attempted: attempted}
}

// BatchError is the terminal outcome of a batch that could not resolve
// enough of its jobs.
type BatchError struct {
	Label     string
	Failures  int
	Tolerance int
	Targets   []string
}

// Error implements the error interface
func (e *BatchError) Error() string {
	label := e.Label
	if label == "" {
		label = "batch"
	}
	return fmt.Sprintf("%s: %d jobs unresolved (tolerance %d)", label, e.Failures, e.Tolerance)
}

// Is implements errors.Is support
func (e *BatchError) Is(target error) bool {
	return target == ErrBatchFailed
}

// NewBatchError creates a new BatchError
func NewBatchError(label string, tolerance int, targets []string) *BatchError {
	return &BatchError{
		Label:     label,
		Failures:  len(targets),
		Tolerance: tolerance,
		Targets:   targets,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml", "html", etc.
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "stat", "delete"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsTransient checks if an error is worth another attempt
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout)
}

// IsStructure checks if an error is a structural validation error
func IsStructure(err error) bool {
	return errors.Is(err, ErrStructure)
}

// IsBatchFailed checks if an error is a terminal batch error
func IsBatchFailed(err error) bool {
	return errors.Is(err, ErrBatchFailed)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// Helper wrapping functions for common patterns

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}
