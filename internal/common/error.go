// Package common defines shared constants and sentinel errors used across
// Gatekeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Login failure. Returned identically whether the identifier is unknown
	// or the password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")

	// Authorization chain outcomes.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	// Object-storage access errors.
	ErrScopeViolation = errors.New("scope violation")
	ErrUpstream       = errors.New("upstream failure")

	// Validation errors on inbound payloads.
	ErrValidation = errors.New("validation error")
)
