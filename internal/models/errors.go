package models

import "errors"

// Query related errors
var (
	ErrInvalidSubject = errors.New("subject is required")
)

// Source related errors
var (
	// ErrNoData signals that an upstream answered successfully but had no
	// matching records. Agents translate it into StatusEmpty rather than
	// StatusError.
	ErrNoData = errors.New("no matching data upstream")
)

// History related errors
var (
	ErrRecordNotFound = errors.New("analysis record not found")
	ErrDuplicateRun   = errors.New("analysis run already recorded")
)
