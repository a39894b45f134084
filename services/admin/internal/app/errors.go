package app

import "errors"

var (
	// ErrInvalidCredentials is safe to show to end users and does not
	// enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	// ErrUnknownTable is returned when a request names a collection
	// this deployment does not serve.
	ErrUnknownTable = errors.New("unknown collection")
)
