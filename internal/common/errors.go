// Package common defines shared sentinel errors used across the ingestion
// pipeline. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Intake errors.
	ErrInvalidInput     = errors.New("invalid input")
	ErrQueueUnavailable = errors.New("queue unavailable")

	// Object storage errors.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrTransferFailed     = errors.New("transfer failed")
)
