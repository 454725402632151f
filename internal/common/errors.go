// Package common defines sentinel errors shared by the repositories, services
// and HTTP handlers. Callers should match them with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// A private send between two users where either one blocks the other.
	ErrBlocked = errors.New("blocked")
)
