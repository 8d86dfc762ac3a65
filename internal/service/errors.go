package service

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports an invalid request. Nothing past validation ran.
type ValidationError struct {
	Field  string
	Msg    string
	Detail string
}

func (e *ValidationError) Error() string   { return e.Msg }
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// ErrorDetail is the caller-facing hint, such as the list of valid voices.
func (e *ValidationError) ErrorDetail() string { return e.Detail }

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RateLimitExceeded is returned when the client used up its window.
type RateLimitExceeded struct {
	Limit  int
	Window string
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s", e.Limit, e.Window)
}
func (e *RateLimitExceeded) StatusCode() int { return http.StatusTooManyRequests }

// IsRateLimitExceeded reports whether err is (or wraps) a RateLimitExceeded.
func IsRateLimitExceeded(err error) bool {
	var re *RateLimitExceeded
	return errors.As(err, &re)
}

// CapacityExceeded is returned when the shared queue is full.
type CapacityExceeded struct{ Max int }

func (e *CapacityExceeded) Error() string {
	return fmt.Sprintf("server at capacity (queue max %d), retry later", e.Max)
}
func (e *CapacityExceeded) StatusCode() int { return http.StatusServiceUnavailable }

// IsCapacityExceeded reports whether err is (or wraps) a CapacityExceeded.
func IsCapacityExceeded(err error) bool {
	var ce *CapacityExceeded
	return errors.As(err, &ce)
}

// ShuttingDownError is returned for new work once shutdown has begun.
type ShuttingDownError struct{}

func (ShuttingDownError) Error() string   { return "server is shutting down" }
func (ShuttingDownError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrShuttingDown is the shared ShuttingDownError value.
var ErrShuttingDown error = ShuttingDownError{}
